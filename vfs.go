package vfs

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/log"
	"golang.org/x/sync/singleflight"
)

// ContextFactory creates contexts for the URI schemes it serves.
type ContextFactory interface {
	Schemes() []string
	// NewContext returns a context whose root is rootURI or one of its prefixes.
	NewContext(ctx context.Context, rootURI *url.URL, opts ...ContextOption) (Context, error)
}

// VirtualFileSystem resolves URIs into virtual files.
//
// It is an explicit value rather than a process-wide registry: factories,
// the context cache and the mount table are all supplied at construction.
type VirtualFileSystem struct {
	mu sync.RWMutex

	log       *log.Logger
	factories map[string]ContextFactory
	cache     Cache
	mounts    MountTable

	contexts map[string]Context
	order    []string
	creating singleflight.Group
	closed   atomic.Bool
}

func New(opts ...VirtualFileSystemOption) (*VirtualFileSystem, error) {
	options := newDefaultVirtualFileSystemOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	v := &VirtualFileSystem{
		log:       options.Logger,
		factories: make(map[string]ContextFactory),
		cache:     options.Cache,
		mounts:    options.MountTable,
		contexts:  make(map[string]Context),
	}

	for _, factory := range options.Factories {
		for _, scheme := range factory.Schemes() {
			scheme = strings.ToLower(scheme)
			if _, exists := v.factories[scheme]; exists {
				return nil, fmt.Errorf("%w: scheme '%s' registered twice", data.ErrExist, scheme)
			}
			v.factories[scheme] = factory
		}
	}

	return v, nil
}

func (v *VirtualFileSystem) Logger() *log.Logger {
	return v.log
}

func (v *VirtualFileSystem) MountTable() MountTable {
	return v.mounts
}

// GetContext returns the context responsible for uri, creating it through
// the factory of the URI scheme when no known context covers uri.
func (v *VirtualFileSystem) GetContext(ctx context.Context, uri string) (Context, error) {
	u, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	c, _, err := v.contextFor(ctx, u)
	return c, err
}

// GetRoot returns the root of the context responsible for uri.
func (v *VirtualFileSystem) GetRoot(ctx context.Context, uri string) (*VirtualFile, error) {
	c, err := v.GetContext(ctx, uri)
	if err != nil {
		return nil, err
	}
	return c.FS().Root(ctx)
}

// GetFile resolves uri down to a single virtual file.
func (v *VirtualFileSystem) GetFile(ctx context.Context, uri string) (*VirtualFile, error) {
	u, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	c, rel, err := v.contextFor(ctx, u)
	if err != nil {
		return nil, err
	}
	return c.FS().Child(ctx, rel)
}

// Resolve turns a persisted identity back into a live file.
func (v *VirtualFileSystem) Resolve(ctx context.Context, id Identity) (*VirtualFile, error) {
	if id.IsZero() {
		return nil, data.ErrInvalid
	}

	u, err := parseURI(id.RootURI)
	if err != nil {
		return nil, err
	}

	c, rel, err := v.contextFor(ctx, u)
	if err != nil {
		return nil, err
	}
	return c.FS().Child(ctx, data.JoinPath(rel, id.Path))
}

func (v *VirtualFileSystem) resolveHandler(ctx context.Context, uri string) (Handler, error) {
	u, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	c, rel, err := v.contextFor(ctx, u)
	if err != nil {
		return nil, err
	}

	root, err := c.Root(ctx)
	if err != nil {
		return nil, err
	}
	return c.FindChild(ctx, root, rel)
}

// Mount exposes the archive behind vf on behalf of owner.
func (v *VirtualFileSystem) Mount(ctx context.Context, owner Owner, vf *VirtualFile, mountType MountType) (*VirtualFile, error) {
	if v.mounts == nil {
		return nil, data.ErrNotSupported
	}
	if err := vf.check(); err != nil {
		return nil, err
	}

	root, err := v.mounts.Mount(ctx, owner, vf.Handler(), mountType)
	if err != nil {
		return nil, err
	}
	return root.VirtualFile()
}

// Cleanup releases every mount held by owner.
func (v *VirtualFileSystem) Cleanup(ctx context.Context, owner Owner) error {
	if v.mounts == nil {
		return nil
	}
	return v.mounts.Cleanup(ctx, owner)
}

// Contexts returns the contexts created by this manager in creation order.
func (v *VirtualFileSystem) Contexts() []Context {
	v.mu.RLock()
	defer v.mu.RUnlock()

	contexts := make([]Context, 0, len(v.order))
	for _, key := range v.order {
		if c, ok := v.contexts[key]; ok {
			contexts = append(contexts, c)
		}
	}
	return contexts
}

// Close closes every context in reverse creation order, then the mount table.
func (v *VirtualFileSystem) Close(ctx context.Context) error {
	if !v.closed.CompareAndSwap(false, true) {
		return nil
	}

	contexts := v.Contexts()
	errs := &data.Errors{}
	for i := len(contexts) - 1; i >= 0; i-- {
		errs.Add(contexts[i].Close(ctx))
	}

	if v.cache != nil {
		v.cache.Flush()
	}

	if closer, ok := v.mounts.(interface{ Close(context.Context) error }); ok {
		errs.Add(closer.Close(ctx))
	}

	v.log.Debug("Close: closed %d contexts", len(contexts))
	return errs.Errors()
}

func (v *VirtualFileSystem) contextFor(ctx context.Context, u *url.URL) (Context, string, error) {
	if v.closed.Load() {
		return nil, "", data.Closed("virtual file system")
	}

	if c := v.findContext(u); c != nil {
		if rel, ok := relativeTo(c, u); ok {
			return c, rel, nil
		}
	}

	factory, ok := v.factories[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, "", fmt.Errorf("%w: no factory for scheme '%s'", data.ErrNotSupported, u.Scheme)
	}

	// concurrent requests for one uri share a single creation
	value, err, _ := v.creating.Do(u.String(), func() (any, error) {
		if c := v.findContext(u); c != nil {
			if _, ok := relativeTo(c, u); ok {
				return c, nil
			}
		}

		c, err := factory.NewContext(ctx, u,
			WithContextLogger(v.log.Named(u.Scheme)),
			WithMountTable(v.mounts),
			WithResolver(v.resolveHandler))
		if err != nil {
			return nil, err
		}

		if _, ok := relativeTo(c, u); !ok {
			return nil, fmt.Errorf("%w: context '%s' does not cover '%s'", data.ErrInvalid, c.Key(), u)
		}
		return v.register(ctx, c)
	})
	if err != nil {
		return nil, "", err
	}

	c := value.(Context)
	rel, _ := relativeTo(c, u)
	return c, rel, nil
}

func (v *VirtualFileSystem) findContext(u *url.URL) Context {
	if v.cache != nil {
		if c := v.cache.FindContext(u); c != nil && !c.IsClosed() {
			return c
		}
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	var best Context
	for _, c := range v.contexts {
		if c.IsClosed() {
			continue
		}
		if _, ok := relativeTo(c, u); ok && (best == nil || len(c.Key()) > len(best.Key())) {
			best = c
		}
	}
	return best
}

// register records c unless a live context with the same key is known
// already; the known one wins and c is closed.
func (v *VirtualFileSystem) register(ctx context.Context, c Context) (Context, error) {
	v.mu.Lock()
	if v.closed.Load() {
		v.mu.Unlock()
		c.Close(ctx)
		return nil, data.Closed("virtual file system")
	}
	if existing, ok := v.contexts[c.Key()]; ok && !existing.IsClosed() {
		v.mu.Unlock()
		if existing != c {
			v.log.Debug("GetContext: dropping duplicate context %s", c.Key())
			c.Close(ctx)
		}
		return existing, nil
	}
	if _, known := v.contexts[c.Key()]; !known {
		v.order = append(v.order, c.Key())
	}
	v.contexts[c.Key()] = c
	v.mu.Unlock()

	if v.cache != nil {
		v.cache.PutContext(c)
	}

	if closer, ok := c.(interface {
		OnClose(fn func(ctx context.Context) error)
	}); ok {
		closer.OnClose(func(context.Context) error {
			v.forget(c)
			return nil
		})
	}

	v.log.Debug("GetContext: registered context %s", c.Key())
	return c, nil
}

func (v *VirtualFileSystem) forget(c Context) {
	if v.cache != nil {
		v.cache.RemoveContext(c)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, ok := v.contexts[c.Key()]; ok && existing == c {
		delete(v.contexts, c.Key())
		v.order = slices.DeleteFunc(v.order, func(key string) bool {
			return key == c.Key()
		})
	}
}

// relativeTo returns the path of u below the root of c.
func relativeTo(c Context, u *url.URL) (string, bool) {
	root := c.RootURI()
	if !strings.EqualFold(root.Scheme, u.Scheme) || root.Host != u.Host {
		return "", false
	}

	rootPath := strings.Trim(root.Path, data.Separator)
	target := strings.Trim(u.Path, data.Separator)
	switch {
	case rootPath == "":
		return target, true
	case target == rootPath:
		return "", true
	case strings.HasPrefix(target, rootPath+data.Separator):
		return target[len(rootPath)+1:], true
	default:
		return "", false
	}
}

func parseURI(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", data.ErrInvalidPath, uri, err)
	}
	if u.Scheme == "" {
		return nil, data.InvalidPath(uri)
	}
	return u, nil
}
