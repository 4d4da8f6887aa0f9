package handler

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"time"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend"
	"github.com/mwantia/vfs/v2/mount/backend/direct"
)

// DeleteRetryInterval is the pause between delete attempts within a grace period.
var DeleteRetryInterval = 100 * time.Millisecond

// BackedContext serves the tree of a backend.FileSystem.
type BackedContext struct {
	vfs.BaseContext

	fs        backend.FileSystem
	kind      vfs.HandlerKind
	readOnly  bool
	automount bool
	mountType vfs.MountType
}

// NewBackedContext opens fs and wraps it in a context rooted at rootURI.
// The backend is closed together with the context, or right away on failure.
func NewBackedContext(ctx context.Context, rootURI *url.URL, fs backend.FileSystem, kind vfs.HandlerKind, opts ...vfs.ContextOption) (*BackedContext, error) {
	c := &BackedContext{
		fs:   fs,
		kind: kind,
	}
	if err := c.Init(c, rootURI, c.createRoot, opts...); err != nil {
		fs.Close(ctx)
		return nil, err
	}

	options := c.Options()
	c.readOnly = fs.IsReadOnly() || options.Bool(vfs.OptionReadOnly, false)
	c.automount = options.Bool(vfs.OptionAutoMount, false)
	if mountType, ok := options.Get(vfs.OptionMountType); ok {
		c.mountType = vfs.ParseMountType(mountType)
	}

	if err := fs.Open(ctx); err != nil {
		fs.Close(ctx)
		return nil, data.IOFailure(err, vfs.ContextKey(rootURI))
	}
	c.OnClose(fs.Close)

	c.Logger().Debug("NewBackedContext: opened %s backend for %s", fs.Name(), c.Key())
	return c, nil
}

// FileSystem returns the backend behind this context.
func (c *BackedContext) FileSystem() backend.FileSystem {
	return c.fs
}

func (c *BackedContext) IsReadOnly() bool {
	return c.readOnly
}

func (c *BackedContext) createRoot(ctx context.Context) (vfs.Handler, error) {
	stat, err := c.fs.Stat(ctx, "")
	if err != nil {
		return nil, data.IOFailure(err, c.Key())
	}

	if !stat.IsDir() {
		c.Logger().Debug("createRoot: root of %s is a leaf", c.Key())
	}
	return newBackedHandler(c, c.RootConfig(c.kind)), nil
}

// BackedHandler is a node of a backend.FileSystem tree.
// It resolves one segment at a time and keeps its children in a cache
// that is replaced as a whole on every listing.
type BackedHandler struct {
	vfs.BaseHandler

	context  *BackedContext
	children atomic.Pointer[childCache]
}

type childCache struct {
	entries map[string]*cachedChild
}

type cachedChild struct {
	handler *BackedHandler
	link    atomic.Pointer[LinkHandler]
	modTime time.Time
}

func (cc *childCache) lookup(name string, modTime time.Time) *cachedChild {
	if cc == nil {
		return nil
	}
	entry, ok := cc.entries[name]
	if !ok || entry.handler.IsClosed() || !entry.modTime.Equal(modTime) {
		return nil
	}
	return entry
}

func newBackedHandler(c *BackedContext, cfg vfs.HandlerConfig) *BackedHandler {
	h := &BackedHandler{context: c}
	h.Init(h, cfg)
	c.Remember(h)
	return h
}

// Stat returns the backend description of this node.
func (h *BackedHandler) Stat(ctx context.Context) (*data.FileStat, error) {
	if err := h.CheckClosed(); err != nil {
		return nil, err
	}

	stat, err := h.context.fs.Stat(ctx, h.LocalPath())
	if err != nil {
		return nil, data.IOFailure(err, h.PathName())
	}
	return stat, nil
}

// FileSystem returns the backend this handler reads from.
func (h *BackedHandler) FileSystem() backend.FileSystem {
	return h.context.fs
}

// OSPath returns the path on the local disk when the backend is a directory.
func (h *BackedHandler) OSPath() (string, bool) {
	db, ok := h.context.fs.(*direct.DirectBackend)
	if !ok {
		return "", false
	}
	return filepath.Join(db.Path(), filepath.FromSlash(h.LocalPath())), true
}

// IsLeaf treats a vanished node as a leaf.
func (h *BackedHandler) IsLeaf(ctx context.Context) (bool, error) {
	stat, err := h.Stat(ctx)
	if err != nil {
		if errors.Is(err, data.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	return !stat.IsDir(), nil
}

func (h *BackedHandler) Exists(ctx context.Context) (bool, error) {
	if err := h.CheckClosed(); err != nil {
		return false, err
	}
	return backend.Exists(ctx, h.context.fs, h.LocalPath())
}

func (h *BackedHandler) Size(ctx context.Context) (int64, error) {
	stat, err := h.Stat(ctx)
	if err != nil {
		return 0, err
	}
	return stat.Size, nil
}

func (h *BackedHandler) LastModified(ctx context.Context) (time.Time, error) {
	stat, err := h.Stat(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return stat.ModifyTime, nil
}

func (h *BackedHandler) Open(ctx context.Context) (io.ReadCloser, error) {
	stat, err := h.Stat(ctx)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, data.IOFailure(data.ErrIsDirectory, h.PathName())
	}

	r, err := h.context.fs.OpenObject(ctx, h.LocalPath())
	if err != nil {
		return nil, data.IOFailure(err, h.PathName())
	}
	return r, nil
}

func (h *BackedHandler) Children(ctx context.Context, ignoreErrors bool) ([]vfs.Handler, error) {
	if err := h.CheckClosed(); err != nil {
		return nil, err
	}

	stats, err := h.context.fs.ListObjects(ctx, h.LocalPath())
	if err != nil {
		err = data.IOFailure(err, h.PathName())
		if ignoreErrors && data.Skippable(err) {
			h.context.Logger().Debug("Children: ignoring listing failure of '%s': %v", h.PathName(), err)
			return nil, nil
		}
		return nil, err
	}

	previous := h.children.Load()
	next := &childCache{entries: make(map[string]*cachedChild, len(stats))}
	children := make([]vfs.Handler, 0, len(stats))

	for _, stat := range stats {
		name := stat.Name()
		entry := previous.lookup(name, stat.ModifyTime)
		if entry == nil {
			entry = h.newChild(name, stat.ModifyTime)
		}
		next.entries[name] = entry

		child, err := h.resolveChild(ctx, entry)
		if err != nil {
			if ignoreErrors && data.Skippable(err) {
				h.context.Logger().Debug("Children: skipping '%s': %v", entry.handler.PathName(), err)
				continue
			}
			return nil, err
		}
		children = append(children, child)
	}

	h.children.Store(next)
	return children, nil
}

// CreateChild returns the direct child called name.
func (h *BackedHandler) CreateChild(ctx context.Context, name string) (vfs.Handler, error) {
	if err := h.CheckClosed(); err != nil {
		return nil, err
	}

	stat, err := h.context.fs.Stat(ctx, data.JoinPath(h.LocalPath(), name))
	if errors.Is(err, data.ErrNotExist) && !data.IsLink(name) {
		// A link directory is addressed without the suffix of its file.
		if linkStat, linkErr := h.context.fs.Stat(ctx, data.JoinPath(h.LocalPath(), name+data.LinkSuffix)); linkErr == nil {
			name, stat, err = name+data.LinkSuffix, linkStat, nil
		}
	}
	if err != nil {
		if errors.Is(err, data.ErrNotExist) {
			return nil, data.NotFound(data.JoinPath(h.PathName(), name))
		}
		return nil, data.IOFailure(err, data.JoinPath(h.PathName(), name))
	}

	entry := h.children.Load().lookup(name, stat.ModifyTime)
	if entry == nil {
		entry = h.storeChild(name, stat.ModifyTime)
	}
	return h.resolveChild(ctx, entry)
}

func (h *BackedHandler) FindChild(ctx context.Context, path string) (vfs.Handler, error) {
	return vfs.FindChildStructured(ctx, h, path)
}

// storeChild adds a new child to a copy of the cache and swaps it in.
func (h *BackedHandler) storeChild(name string, modTime time.Time) *cachedChild {
	for {
		previous := h.children.Load()
		if entry := previous.lookup(name, modTime); entry != nil {
			return entry
		}

		entry := h.newChild(name, modTime)
		next := &childCache{entries: make(map[string]*cachedChild)}
		if previous != nil {
			for k, v := range previous.entries {
				next.entries[k] = v
			}
		}
		next.entries[name] = entry

		if h.children.CompareAndSwap(previous, next) {
			return entry
		}
	}
}

func (h *BackedHandler) newChild(name string, modTime time.Time) *cachedChild {
	localPath := data.JoinPath(h.LocalPath(), name)
	if existing, ok := h.context.Recall(localPath); ok {
		if backed, ok := existing.(*BackedHandler); ok {
			return &cachedChild{handler: backed, modTime: modTime}
		}
	}

	child := newBackedHandler(h.context, vfs.HandlerConfig{
		Name:          name,
		Kind:          h.Kind(),
		Context:       h.context,
		LocalPath:     localPath,
		ParentHandler: h,
	})
	return &cachedChild{handler: child, modTime: modTime}
}

// resolveChild substitutes mounted archives and link files for the raw child.
func (h *BackedHandler) resolveChild(ctx context.Context, entry *cachedChild) (vfs.Handler, error) {
	child := entry.handler
	name := child.Name()

	if mt := h.context.MountTable(); mt != nil {
		if root, ok := mt.MountedRoot(child); ok {
			return root, nil
		}

		if h.context.automount && data.IsArchive(name) {
			leaf, err := child.IsLeaf(ctx)
			if err != nil {
				return nil, err
			}
			if leaf {
				return mt.Mount(ctx, vfs.ContextOwner(h.context), child, h.context.mountType)
			}
		}
	}

	if data.IsLink(name) {
		if link := entry.link.Load(); link != nil && !link.IsClosed() {
			return link, nil
		}

		link, err := NewLinkHandler(ctx, child)
		if err != nil {
			return nil, err
		}
		entry.link.Store(link)
		return link, nil
	}

	return child, nil
}

// Delete removes this node, retrying until gracePeriod has elapsed.
// It reports false without error when the node was already gone.
func (h *BackedHandler) Delete(ctx context.Context, gracePeriod time.Duration) (bool, error) {
	if err := h.CheckClosed(); err != nil {
		return false, err
	}
	if h.context.readOnly {
		return false, data.IOFailure(data.ErrReadOnly, h.PathName())
	}

	deadline := time.Now().Add(gracePeriod)
	for {
		err := h.context.fs.DeleteObject(ctx, h.LocalPath(), true)
		if err == nil {
			h.context.Logger().Debug("Delete: deleted '%s'", h.PathName())
			return true, nil
		}
		if errors.Is(err, data.ErrNotExist) {
			return false, nil
		}
		if errors.Is(err, data.ErrReadOnly) || !time.Now().Before(deadline) {
			return false, data.IOFailure(err, h.PathName())
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(DeleteRetryInterval):
		}
	}
}
