// Package mount tracks which archives are mounted where and on whose behalf.
//
// Entries form a tree keyed by the segments of the target location. An entry
// stays mounted for as long as at least one owner holds it; when the last
// owner is cleaned up the entry and every entry below it are unmounted,
// deepest first.
package mount

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/log"
)

type entryState int32

const (
	stateUnmounted entryState = iota
	stateMounting
	stateMounted
	stateUnmounting
)

func (s entryState) String() string {
	switch s {
	case stateUnmounted:
		return "unmounted"
	case stateMounting:
		return "mounting"
	case stateMounted:
		return "mounted"
	case stateUnmounting:
		return "unmounting"
	default:
		return "unknown"
	}
}

// entry is one location of the registry tree. Entries are never removed;
// unmounting only resets their state.
type entry struct {
	path     string
	children sync.Map // segment -> *entry

	mu      sync.Mutex
	state   entryState
	owners  map[any]Owner
	handles []*Mount
	backup  *BackupInfo
	// closed once the teardown covering this entry has finished
	released chan struct{}
}

func newEntry(path string) *entry {
	return &entry{
		path:   path,
		owners: make(map[any]Owner),
	}
}

func (e *entry) child(segment string, create bool) *entry {
	if value, ok := e.children.Load(segment); ok {
		return value.(*entry)
	}
	if !create {
		return nil
	}

	value, _ := e.children.LoadOrStore(segment, newEntry(e.path+data.Separator+segment))
	return value.(*entry)
}

// subtree returns e and all entries below it in pre-order.
func (e *entry) subtree() []*entry {
	entries := []*entry{e}
	e.children.Range(func(_, value any) bool {
		entries = append(entries, value.(*entry).subtree()...)
		return true
	})
	return entries
}

// Registry is the mount table of a virtual file system.
type Registry struct {
	log     *log.Logger
	options *RegistryOptions

	root      *entry
	owners    sync.Map // OwnerKey -> *ownerSet
	provider  ArchiveProvider
	tempDir   string
	backupDir string
	closed    atomic.Bool
}

var _ vfs.MountTable = (*Registry)(nil)

// NewRegistry creates an empty registry with a private temp directory.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	options := newDefaultRegistryOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	tempDir, err := os.MkdirTemp(options.TempDir, "vfs-mounts-")
	if err != nil {
		return nil, fmt.Errorf("failed to create mount directory: %w", err)
	}
	backupDir := filepath.Join(tempDir, "backups")
	if err := os.Mkdir(backupDir, 0700); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	r := &Registry{
		log:       options.Logger,
		options:   options,
		root:      newEntry(""),
		provider:  options.Provider,
		tempDir:   tempDir,
		backupDir: backupDir,
	}
	if r.provider == nil {
		r.provider = NewZipProvider(options.Logger, r)
	}

	r.log.Debug("NewRegistry: using %s with backup policy '%s'", tempDir, options.BackupPolicy)
	return r, nil
}

// TempDir returns the private directory of this registry.
func (r *Registry) TempDir() string {
	return r.tempDir
}

// Mount exposes the archive behind target on behalf of owner and returns the
// root of its content. Mounting a mounted target only adds the owner.
// A target that is not a leaf is tracked for owner but returned as is.
func (r *Registry) Mount(ctx context.Context, owner Owner, target vfs.Handler, mountType vfs.MountType) (vfs.Handler, error) {
	if r.closed.Load() {
		return nil, data.Closed("mount registry")
	}
	if owner == nil || target == nil {
		return nil, data.ErrInvalid
	}

	segments, err := targetSegments(target)
	if err != nil {
		return nil, data.MountFailed(err, target.PathName())
	}
	e := r.lookup(segments, true)

	if err := e.lockSettled(ctx); err != nil {
		return nil, data.MountFailed(err, e.path)
	}
	defer e.mu.Unlock()

	result := target
	if len(e.handles) == 0 {
		leaf, err := target.IsLeaf(ctx)
		if err != nil {
			return nil, data.MountFailed(err, e.path)
		}

		if leaf {
			r.log.Debug("Mount: mounting %s for owner %v", e.path, owner)

			m, err := r.mountLocked(ctx, e, target, mountType)
			if err != nil {
				r.log.Warn("Mount: failed to mount %s: %v", e.path, err)
				return nil, data.MountFailed(err, e.path)
			}
			result = m.Root()
		}
	} else {
		result = e.handles[0].Root()
	}

	if _, exists := e.owners[owner.OwnerKey()]; !exists {
		e.owners[owner.OwnerKey()] = owner
		r.index(owner, e)
	}
	return result, nil
}

// lockSettled locks e once no teardown covers it anymore.
func (e *entry) lockSettled(ctx context.Context) error {
	for {
		e.mu.Lock()
		released := e.released
		if released == nil {
			return nil
		}
		e.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// mountLocked moves e from unmounted to mounted, reverting on failure.
func (r *Registry) mountLocked(ctx context.Context, e *entry, target vfs.Handler, mountType vfs.MountType) (*Mount, error) {
	e.state = stateMounting

	backup, err := r.prepareBackup(ctx, e, target)
	if err != nil {
		e.state = stateUnmounted
		return nil, err
	}

	id := data.NewID()
	tempDir := filepath.Join(r.tempDir, id)
	if err := os.Mkdir(tempDir, 0700); err != nil {
		r.removeBackup(backup)
		e.state = stateUnmounted
		return nil, err
	}

	closer, root, err := r.provider.MountArchive(ctx, target, tempDir, mountType)
	if err != nil {
		r.removeBackup(backup)
		os.RemoveAll(tempDir)
		e.state = stateUnmounted
		return nil, err
	}
	r.commitBackup(e, backup)

	m := &Mount{
		ID:        id,
		Target:    e.path,
		Type:      mountType,
		MountTime: time.Now(),
		root:      root,
		closer:    closer,
		tempDir:   tempDir,
	}
	e.handles = append(e.handles, m)
	e.state = stateMounted
	return m, nil
}

// MountedRoot returns the root mounted over target, if any.
func (r *Registry) MountedRoot(target vfs.Handler) (vfs.Handler, bool) {
	e := r.find(target)
	if e == nil {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.handles) == 0 || e.released != nil {
		return nil, false
	}
	return e.handles[0].Root(), true
}

// IsMounted reports whether an archive is mounted over target.
func (r *Registry) IsMounted(target vfs.Handler) bool {
	e := r.find(target)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.handles) > 0 && e.released == nil
}

// Owners returns the number of owners holding target.
func (r *Registry) Owners(target vfs.Handler) int {
	e := r.find(target)
	if e == nil {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.owners)
}

// Mounts returns the active mounts, outer archives before nested ones.
func (r *Registry) Mounts() []*Mount {
	var mounts []*Mount
	for _, e := range r.root.subtree() {
		e.mu.Lock()
		mounts = append(mounts, e.handles...)
		e.mu.Unlock()
	}
	return mounts
}

// Cleanup drops owner from every entry it holds. Entries left without owners
// are unmounted together with their subtree before Cleanup returns.
// Failures of one subtree do not stop the others; all are reported.
func (r *Registry) Cleanup(ctx context.Context, owner Owner) error {
	if owner == nil {
		return data.ErrInvalid
	}

	key := owner.OwnerKey()
	entries := r.take(key)
	if len(entries) == 0 {
		return nil
	}

	r.log.Debug("Cleanup: releasing %d entries of owner %v", len(entries), owner)

	errs := &data.Errors{}
	for _, e := range entries {
		e.mu.Lock()
		_, held := e.owners[key]
		delete(e.owners, key)
		orphaned := held && len(e.owners) == 0
		e.mu.Unlock()

		if orphaned {
			errs.Add(r.teardown(ctx, e))
		}
	}
	return errs.Errors()
}

// teardown unmounts the subtree of e deepest-first. Entries that were claimed
// again in the meantime are left alone together with their subtree.
// Mounts of a covered entry wait until the teardown has finished.
func (r *Registry) teardown(ctx context.Context, e *entry) error {
	released := make(chan struct{})
	defer close(released)

	e.mu.Lock()
	if len(e.owners) > 0 || e.released != nil {
		e.mu.Unlock()
		return nil
	}
	e.state = stateUnmounting
	e.released = released
	e.mu.Unlock()

	entries := e.subtree()
	for _, covered := range entries[1:] {
		covered.mu.Lock()
		if covered.released == nil {
			covered.state = stateUnmounting
			covered.released = released
		}
		covered.mu.Unlock()
	}

	errs := &data.Errors{}
	for i := len(entries) - 1; i >= 0; i-- {
		errs.Add(r.unmount(ctx, entries[i]))
	}

	for _, covered := range entries {
		covered.mu.Lock()
		if covered.released == released {
			covered.released = nil
			covered.state = stateUnmounted
		}
		covered.mu.Unlock()
	}
	return errs.Errors()
}

func (r *Registry) unmount(ctx context.Context, e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key := range e.owners {
		r.unindex(key, e)
	}
	clear(e.owners)

	if len(e.handles) == 0 {
		return nil
	}

	e.state = stateUnmounting
	errs := &data.Errors{}
	for i := len(e.handles) - 1; i >= 0; i-- {
		errs.Add(e.handles[i].Close(ctx))
	}
	e.handles = nil
	if e.released == nil {
		e.state = stateUnmounted
	}

	if err := errs.Errors(); err != nil {
		r.log.Warn("Cleanup: failed to unmount %s: %v", e.path, err)
		return data.UnmountFailed(err, e.path)
	}

	r.log.Debug("Cleanup: unmounted %s", e.path)
	return nil
}

// Close unmounts everything and deletes all temp copies and backups.
func (r *Registry) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	entries := r.root.subtree()
	errs := &data.Errors{}
	for i := len(entries) - 1; i >= 0; i-- {
		errs.Add(r.unmount(ctx, entries[i]))
	}

	r.owners.Clear()
	errs.Add(os.RemoveAll(r.tempDir))

	r.log.Debug("Close: closed mount registry")
	return errs.Errors()
}

func (r *Registry) find(target vfs.Handler) *entry {
	segments, err := targetSegments(target)
	if err != nil {
		return nil
	}
	return r.lookup(segments, false)
}

// lookup walks the tree along segments, inserting missing entries if create is set.
func (r *Registry) lookup(segments []string, create bool) *entry {
	e := r.root
	for _, segment := range segments {
		if e = e.child(segment, create); e == nil {
			return nil
		}
	}
	return e
}

// targetSegments keys a target by the scheme of its outermost context, the
// host and the path. Archive contexts carry their base scheme and the path
// of their target, so nested targets share the prefix of the outer one.
func targetSegments(target vfs.Handler) ([]string, error) {
	uri, err := target.URI()
	if err != nil {
		return nil, err
	}

	segments := []string{strings.ToLower(baseScheme(uri)), uri.Host}
	return append(segments, data.TokenizePath(uri.Path)...), nil
}
