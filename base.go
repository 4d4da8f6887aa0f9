package vfs

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/refcount"
)

// HandlerConfig describes where a new handler sits in the tree.
type HandlerConfig struct {
	Name      string
	Kind      HandlerKind
	Context   Context
	LocalPath string

	// ParentHandler, when set, provides both the parent reference and the
	// path name prefix.
	ParentHandler Handler

	// Parent and PathName are used when ParentHandler is nil, e.g. for the
	// root of a mounted archive that appears inside another context.
	Parent   ParentRef
	PathName string
}

// BaseHandler carries the state shared by every handler variant.
// Variants embed it and call Init from their constructor.
type BaseHandler struct {
	self Handler

	name      string
	kind      HandlerKind
	context   Context
	parent    ParentRef
	localPath string
	pathName  string

	// unix nanoseconds of the last HasBeenModified check, 0 before the first
	lastModified atomic.Int64
	res          *refcount.Resource[Handler]

	mu      sync.Mutex
	closers []func() error
}

// Init binds the base to the variant self; it must be called exactly once.
func (b *BaseHandler) Init(self Handler, cfg HandlerConfig) {
	b.self = self
	b.name = strings.Trim(strings.TrimSpace(cfg.Name), data.Separator)
	b.kind = cfg.Kind
	b.context = cfg.Context
	b.localPath = cfg.LocalPath

	if cfg.ParentHandler != nil {
		b.parent = RefOf(cfg.ParentHandler)
		b.pathName = data.JoinPath(cfg.ParentHandler.PathName(), b.name)
	} else {
		b.parent = cfg.Parent
		b.pathName = strings.Trim(cfg.PathName, data.Separator)
	}

	b.res = refcount.New(self, b.teardown)
}

func (b *BaseHandler) base() *BaseHandler {
	return b
}

func (b *BaseHandler) Name() string {
	return b.name
}

func (b *BaseHandler) PathName() string {
	return b.pathName
}

func (b *BaseHandler) LocalPath() string {
	return b.localPath
}

func (b *BaseHandler) Kind() HandlerKind {
	return b.kind
}

func (b *BaseHandler) Context() Context {
	return b.context
}

// ParentRef returns the lookup key of the parent.
func (b *BaseHandler) ParentRef() ParentRef {
	return b.parent
}

func (b *BaseHandler) Parent(ctx context.Context) (Handler, error) {
	if err := b.CheckClosed(); err != nil {
		return nil, err
	}
	return b.parent.Resolve(ctx)
}

// IsHidden follows the unix convention of a leading dot.
func (b *BaseHandler) IsHidden(ctx context.Context) (bool, error) {
	if err := b.CheckClosed(); err != nil {
		return false, err
	}
	return strings.HasPrefix(b.name, "."), nil
}

// HasBeenModified never reports a change on its first call.
func (b *BaseHandler) HasBeenModified(ctx context.Context) (bool, error) {
	if err := b.CheckClosed(); err != nil {
		return false, err
	}

	modified, err := b.self.LastModified(ctx)
	if err != nil {
		return false, err
	}

	current := modified.UnixNano()
	cached := b.lastModified.Swap(current)
	return cached != 0 && cached != current, nil
}

func (b *BaseHandler) URI() (*url.URL, error) {
	if err := b.CheckClosed(); err != nil {
		return nil, err
	}
	return ChildURI(b.context.RootURI(), b.localPath), nil
}

func (b *BaseHandler) URL(ctx context.Context) (string, error) {
	uri, err := b.self.URI()
	if err != nil {
		return "", err
	}

	leaf, err := b.self.IsLeaf(ctx)
	if err != nil {
		return "", err
	}

	s := uri.String()
	if !leaf && !strings.HasSuffix(s, data.Separator) {
		s += data.Separator
	}
	return s, nil
}

func (b *BaseHandler) VirtualFile() (*VirtualFile, error) {
	if b.res.IsClosed() {
		return nil, data.Closed(b.describe())
	}

	handle, err := b.res.Acquire()
	if err != nil {
		if err == data.ErrClosed {
			return nil, data.Closed(b.describe())
		}
		return nil, err
	}

	return &VirtualFile{handler: b.self, handle: handle}, nil
}

// References returns the number of open VirtualFile views, or -1 once closed.
func (b *BaseHandler) References() int64 {
	return b.res.Count()
}

func (b *BaseHandler) IsClosed() bool {
	return b.res.IsClosed()
}

// CheckClosed fails with data.ErrClosed once the handler was torn down.
func (b *BaseHandler) CheckClosed() error {
	if b.res.IsClosed() {
		return data.Closed(b.describe())
	}
	return nil
}

// OnClose registers fn to run when the last view is closed.
// Functions run in reverse registration order.
func (b *BaseHandler) OnClose(fn func() error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closers = append(b.closers, fn)
}

// Kill tears the handler down regardless of open views, e.g. after a delete.
func (b *BaseHandler) Kill() error {
	return b.res.Kill()
}

func (b *BaseHandler) teardown(Handler) error {
	b.mu.Lock()
	closers := b.closers
	b.closers = nil
	b.mu.Unlock()

	errs := &data.Errors{}
	for i := len(closers) - 1; i >= 0; i-- {
		errs.Add(closers[i]())
	}

	if b.context != nil {
		b.context.Forget(b.self)
	}

	return errs.Errors()
}

func (b *BaseHandler) describe() string {
	if b.pathName == "" {
		return b.kind.String() + " root"
	}
	return b.kind.String() + " '" + b.pathName + "'"
}

// ChildURI appends a canonical relative path to root.
func ChildURI(root *url.URL, path string) *url.URL {
	u := *root
	if path == "" {
		return &u
	}

	base := strings.TrimSuffix(u.Path, data.Separator)
	u.Path = base + data.Separator + path
	u.RawPath = ""
	return &u
}
