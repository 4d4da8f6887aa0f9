package vfs

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/log"
	"github.com/tidwall/btree"
)

// Root options understood by the stock contexts.
const (
	// OptionAutoMount mounts archive children through the mount table.
	OptionAutoMount = "automount"
	// OptionReadOnly rejects writes and deletes.
	OptionReadOnly = "readonly"
	// OptionMountType selects the MountType used for automounts.
	OptionMountType = "mounttype"
)

// Context owns one root URI and the handler tree below it.
// Two contexts are equal iff their keys are equal.
type Context interface {
	Name() string
	// Key is the root URI without query and fragment.
	Key() string
	RootURI() *url.URL
	Options() RootOptions
	Logger() *log.Logger
	MountTable() MountTable
	// Outer returns the context this one is mounted into, or nil.
	Outer() Context

	Root(ctx context.Context) (Handler, error)
	// Lookup returns the handler at a path relative to the root.
	Lookup(ctx context.Context, localPath string) (Handler, error)
	// Remember and Forget maintain the index used by Lookup.
	Remember(h Handler)
	Forget(h Handler)

	FindChild(ctx context.Context, parent Handler, path string) (Handler, error)
	Children(ctx context.Context, parent Handler, ignoreErrors bool) ([]Handler, error)
	Visit(ctx context.Context, start Handler, visitor Visitor) error

	FS() *FS
	IsClosed() bool
	Close(ctx context.Context) error
}

// SameContext reports whether a and b share the same root URI.
func SameContext(a, b Context) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Key() == b.Key()
}

// RootOptions holds the key-value pairs parsed from the root URI query.
type RootOptions map[string]string

// ParseRootOptions keeps the first value of every query parameter.
func ParseRootOptions(uri *url.URL) RootOptions {
	opts := make(RootOptions)
	for key, values := range uri.Query() {
		if len(values) > 0 {
			opts[strings.ToLower(key)] = values[0]
		} else {
			opts[strings.ToLower(key)] = ""
		}
	}
	return opts
}

func (o RootOptions) Get(key string) (string, bool) {
	v, ok := o[strings.ToLower(key)]
	return v, ok
}

// Bool treats a present key without value as true.
func (o RootOptions) Bool(key string, def bool) bool {
	v, ok := o.Get(key)
	if !ok {
		return def
	}
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// ContextOptions configure a context at construction time.
type ContextOptions struct {
	Logger     *log.Logger
	MountTable MountTable
	// Resolver turns absolute link targets into handlers of other contexts.
	Resolver Resolver

	// Root placement for contexts that appear inside another tree.
	RootName     string
	RootParent   ParentRef
	RootPathName string
}

type ContextOption func(*ContextOptions) error

// Resolver returns the handler addressed by an absolute URI.
type Resolver func(ctx context.Context, uri string) (Handler, error)

func newDefaultContextOptions() *ContextOptions {
	return &ContextOptions{
		Logger: log.Discard(),
	}
}

func WithContextLogger(logger *log.Logger) ContextOption {
	return func(opts *ContextOptions) error {
		if logger != nil {
			opts.Logger = logger
		}
		return nil
	}
}

func WithMountTable(mt MountTable) ContextOption {
	return func(opts *ContextOptions) error {
		opts.MountTable = mt
		return nil
	}
}

func WithResolver(resolver Resolver) ContextOption {
	return func(opts *ContextOptions) error {
		opts.Resolver = resolver
		return nil
	}
}

// WithRootPlacement makes the root appear as name below parent with the given path name.
func WithRootPlacement(parent ParentRef, pathName, name string) ContextOption {
	return func(opts *ContextOptions) error {
		opts.RootParent = parent
		opts.RootPathName = pathName
		opts.RootName = name
		return nil
	}
}

// BaseContext implements Context apart from root creation.
// Variants embed it and call Init from their constructor.
type BaseContext struct {
	self       Context
	rootURI    *url.URL
	key        string
	options    RootOptions
	settings   *ContextOptions
	createRoot func(ctx context.Context) (Handler, error)

	rootMu  sync.Mutex
	root    Handler
	rootRef *VirtualFile

	arenaMu sync.RWMutex
	arena   *btree.Map[string, Handler]

	fsOnce sync.Once
	fs     *FS

	closed  atomic.Bool
	closeMu sync.Mutex
	closers []func(ctx context.Context) error
}

func (c *BaseContext) Init(self Context, rootURI *url.URL, createRoot func(ctx context.Context) (Handler, error), opts ...ContextOption) error {
	if rootURI == nil {
		return data.ErrInvalid
	}

	settings := newDefaultContextOptions()
	for _, opt := range opts {
		if err := opt(settings); err != nil {
			return err
		}
	}

	uri := *rootURI
	c.self = self
	c.rootURI = &uri
	c.key = ContextKey(&uri)
	c.options = ParseRootOptions(&uri)
	c.settings = settings
	c.createRoot = createRoot
	c.arena = btree.NewMap[string, Handler](0)

	return nil
}

// ContextKey strips query and fragment and trailing separators from uri.
func ContextKey(uri *url.URL) string {
	u := *uri
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimSuffix(u.Path, data.Separator)
	u.RawPath = ""
	return u.String()
}

// Name returns the last path segment of the root URI, or its host.
func (c *BaseContext) Name() string {
	if name := data.BaseName(c.rootURI.Path); name != "" {
		return name
	}
	if c.rootURI.Host != "" {
		return c.rootURI.Host
	}
	return c.rootURI.Opaque
}

func (c *BaseContext) Key() string {
	return c.key
}

func (c *BaseContext) RootURI() *url.URL {
	u := *c.rootURI
	return &u
}

func (c *BaseContext) Options() RootOptions {
	return c.options
}

func (c *BaseContext) Logger() *log.Logger {
	return c.settings.Logger
}

func (c *BaseContext) MountTable() MountTable {
	return c.settings.MountTable
}

// Resolver returns the resolver for absolute URIs, or nil.
func (c *BaseContext) Resolver() Resolver {
	return c.settings.Resolver
}

func (c *BaseContext) Outer() Context {
	return c.settings.RootParent.Context
}

// RootConfig returns the placement of the root handler for this context.
func (c *BaseContext) RootConfig(kind HandlerKind) HandlerConfig {
	name := c.settings.RootName
	if name == "" && c.settings.RootParent.IsZero() {
		name = c.Name()
	}

	return HandlerConfig{
		Name:     name,
		Kind:     kind,
		Context:  c.self,
		Parent:   c.settings.RootParent,
		PathName: c.settings.RootPathName,
	}
}

// Root returns the root handler, creating it on first use.
// The context keeps its own reference to the root until Close.
func (c *BaseContext) Root(ctx context.Context) (Handler, error) {
	if c.closed.Load() {
		return nil, data.Closed("context " + c.key)
	}

	c.rootMu.Lock()
	defer c.rootMu.Unlock()

	if c.root != nil && !c.root.IsClosed() {
		return c.root, nil
	}

	root, err := c.createRoot(ctx)
	if err != nil {
		return nil, err
	}

	ref, err := root.VirtualFile()
	if err != nil {
		return nil, err
	}

	c.root = root
	c.rootRef = ref
	c.Remember(root)

	c.Logger().Debug("Root: created %s root for %s", root.Kind(), c.key)
	return root, nil
}

func (c *BaseContext) Lookup(ctx context.Context, localPath string) (Handler, error) {
	if localPath == "" {
		return c.self.Root(ctx)
	}

	c.arenaMu.RLock()
	h, ok := c.arena.Get(localPath)
	c.arenaMu.RUnlock()
	if ok && !h.IsClosed() {
		return h, nil
	}

	root, err := c.self.Root(ctx)
	if err != nil {
		return nil, err
	}
	return root.FindChild(ctx, localPath)
}

func (c *BaseContext) Remember(h Handler) {
	if h == nil || !SameContext(h.Context(), c.self) {
		return
	}

	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()

	c.arena.Set(h.LocalPath(), h)
}

func (c *BaseContext) Forget(h Handler) {
	c.arenaMu.Lock()
	defer c.arenaMu.Unlock()

	if current, ok := c.arena.Get(h.LocalPath()); ok && current == h {
		c.arena.Delete(h.LocalPath())
	}
}

// Recall returns the live handler indexed at localPath without resolving it.
func (c *BaseContext) Recall(localPath string) (Handler, bool) {
	c.arenaMu.RLock()
	defer c.arenaMu.RUnlock()

	h, ok := c.arena.Get(localPath)
	if !ok || h.IsClosed() {
		return nil, false
	}
	return h, true
}

// Remembered returns the number of indexed handlers.
func (c *BaseContext) Remembered() int {
	c.arenaMu.RLock()
	defer c.arenaMu.RUnlock()

	return c.arena.Len()
}

func (c *BaseContext) FindChild(ctx context.Context, parent Handler, path string) (Handler, error) {
	if c.closed.Load() {
		return nil, data.Closed("context " + c.key)
	}
	if parent == nil {
		return nil, data.ErrInvalid
	}
	return parent.FindChild(ctx, path)
}

func (c *BaseContext) Children(ctx context.Context, parent Handler, ignoreErrors bool) ([]Handler, error) {
	if c.closed.Load() {
		return nil, data.Closed("context " + c.key)
	}
	if parent == nil {
		return nil, data.ErrInvalid
	}
	return parent.Children(ctx, ignoreErrors)
}

func (c *BaseContext) Visit(ctx context.Context, start Handler, visitor Visitor) error {
	if c.closed.Load() {
		return data.Closed("context " + c.key)
	}
	return Walk(ctx, c.self, start, visitor)
}

// FS returns the facade for this context.
func (c *BaseContext) FS() *FS {
	c.fsOnce.Do(func() {
		c.fs = &FS{context: c.self}
	})
	return c.fs
}

// OnClose registers fn to run while the context closes, in reverse order.
func (c *BaseContext) OnClose(fn func(ctx context.Context) error) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	c.closers = append(c.closers, fn)
}

func (c *BaseContext) IsClosed() bool {
	return c.closed.Load()
}

// Close releases the mounts owned by this context, the root reference and
// the backing resources. Repeated calls are no-ops.
func (c *BaseContext) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	errs := &data.Errors{}
	if mt := c.MountTable(); mt != nil {
		errs.Add(mt.Cleanup(ctx, ContextOwner(c.self)))
	}

	c.rootMu.Lock()
	if c.rootRef != nil {
		errs.Add(c.rootRef.Close())
		c.rootRef = nil
	}
	c.root = nil
	c.rootMu.Unlock()

	c.closeMu.Lock()
	closers := c.closers
	c.closers = nil
	c.closeMu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		errs.Add(closers[i](ctx))
	}

	c.arenaMu.Lock()
	c.arena.Clear()
	c.arenaMu.Unlock()

	c.Logger().Debug("Close: closed context %s", c.key)
	return errs.Errors()
}
