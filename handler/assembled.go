package handler

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
)

// AssembledScheme addresses synthetic directories built in code.
const AssembledScheme = "vfsassembled"

// AssembledContext holds a synthetic tree whose leaves point at other virtual files.
type AssembledContext struct {
	vfs.BaseContext
}

// NewAssembledContext creates an empty tree addressed as 'vfsassembled://name'.
func NewAssembledContext(name string, opts ...vfs.ContextOption) (*AssembledContext, error) {
	if name == "" {
		return nil, data.InvalidPath(name)
	}

	c := &AssembledContext{}
	rootURI := &url.URL{Scheme: AssembledScheme, Host: name}
	if err := c.Init(c, rootURI, c.createRoot, opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// Directory returns the root directory.
func (c *AssembledContext) Directory(ctx context.Context) (*AssembledHandler, error) {
	root, err := c.Root(ctx)
	if err != nil {
		return nil, err
	}
	return root.(*AssembledHandler), nil
}

func (c *AssembledContext) createRoot(ctx context.Context) (vfs.Handler, error) {
	return newAssembledHandler(c.RootConfig(vfs.KindAssembled)), nil
}

// AssembledHandler is a synthetic directory. Its children are further
// assembled directories or delegates of files added from elsewhere.
// It resolves paths by scanning its children by name.
type AssembledHandler struct {
	vfs.BaseHandler

	mu       sync.RWMutex
	modTime  time.Time
	children []assembledChild
}

type assembledChild struct {
	handler vfs.Handler
	// keeps the child alive for as long as it belongs to this directory
	ref *vfs.VirtualFile
}

func newAssembledHandler(cfg vfs.HandlerConfig) *AssembledHandler {
	h := &AssembledHandler{
		modTime: time.Now(),
	}
	h.Init(h, cfg)
	h.OnClose(h.releaseChildren)
	cfg.Context.Remember(h)
	return h
}

// AddChild adds a delegate of vf under its own name.
func (h *AssembledHandler) AddChild(vf *vfs.VirtualFile) (vfs.Handler, error) {
	return h.AddChildAs(vf.Name(), vf)
}

// AddChildAs adds a delegate of vf under name.
func (h *AssembledHandler) AddChildAs(name string, vf *vfs.VirtualFile) (vfs.Handler, error) {
	if err := h.CheckClosed(); err != nil {
		return nil, err
	}
	if vf.IsClosed() {
		return nil, data.Closed("virtual file '" + vf.PathName() + "'")
	}
	if err := validChildName(name); err != nil {
		return nil, err
	}

	child := NewDelegatingHandler(h, name, vf.Handler())
	if err := h.add(child); err != nil {
		return nil, err
	}
	return child, nil
}

// Mkdir adds an empty directory called name.
func (h *AssembledHandler) Mkdir(name string) (*AssembledHandler, error) {
	if err := h.CheckClosed(); err != nil {
		return nil, err
	}
	if err := validChildName(name); err != nil {
		return nil, err
	}

	dir := newAssembledHandler(vfs.HandlerConfig{
		Name:          name,
		Kind:          vfs.KindAssembled,
		Context:       h.Context(),
		LocalPath:     data.JoinPath(h.LocalPath(), name),
		ParentHandler: h,
	})
	if err := h.add(dir); err != nil {
		dir.Kill()
		return nil, err
	}
	return dir, nil
}

// AddPath mirrors the tree below vf into this directory. Directories that
// already exist here are merged; files rejected by filter are skipped.
func (h *AssembledHandler) AddPath(ctx context.Context, vf *vfs.VirtualFile, filter func(*vfs.VirtualFile) bool) error {
	children, err := vf.Children(ctx)
	if err != nil {
		return err
	}
	defer vfs.CloseAll(children)

	for _, child := range children {
		leaf, err := child.IsLeaf(ctx)
		if err != nil {
			return err
		}

		if leaf {
			if filter != nil && !filter(child) {
				continue
			}
			if _, err := h.AddChild(child); err != nil {
				return err
			}
			continue
		}

		dir, err := h.directory(child.Name())
		if err != nil {
			return err
		}
		if err := dir.AddPath(ctx, child, filter); err != nil {
			return err
		}
	}
	return nil
}

// RemoveChild detaches the child called name and reports whether it existed.
func (h *AssembledHandler) RemoveChild(name string) (bool, error) {
	if err := h.CheckClosed(); err != nil {
		return false, err
	}

	h.mu.Lock()
	var removed *vfs.VirtualFile
	for i, child := range h.children {
		if child.handler.Name() == name {
			removed = child.ref
			h.children = append(h.children[:i:i], h.children[i+1:]...)
			h.modTime = time.Now()
			break
		}
	}
	h.mu.Unlock()

	if removed == nil {
		return false, nil
	}
	return true, removed.Close()
}

func (h *AssembledHandler) IsLeaf(ctx context.Context) (bool, error) {
	if err := h.CheckClosed(); err != nil {
		return false, err
	}
	return false, nil
}

func (h *AssembledHandler) Exists(ctx context.Context) (bool, error) {
	if err := h.CheckClosed(); err != nil {
		return false, err
	}
	return true, nil
}

func (h *AssembledHandler) Size(ctx context.Context) (int64, error) {
	if err := h.CheckClosed(); err != nil {
		return 0, err
	}
	return 0, nil
}

func (h *AssembledHandler) LastModified(ctx context.Context) (time.Time, error) {
	if err := h.CheckClosed(); err != nil {
		return time.Time{}, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.modTime, nil
}

func (h *AssembledHandler) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := h.CheckClosed(); err != nil {
		return nil, err
	}
	return nil, data.IOFailure(data.ErrIsDirectory, h.PathName())
}

func (h *AssembledHandler) Children(ctx context.Context, ignoreErrors bool) ([]vfs.Handler, error) {
	if err := h.CheckClosed(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	children := make([]vfs.Handler, 0, len(h.children))
	for _, child := range h.children {
		children = append(children, child.handler)
	}
	return children, nil
}

func (h *AssembledHandler) FindChild(ctx context.Context, path string) (vfs.Handler, error) {
	return vfs.FindChildSimple(ctx, h, path)
}

// Delete detaches this directory from its assembled parent.
func (h *AssembledHandler) Delete(ctx context.Context, gracePeriod time.Duration) (bool, error) {
	parent, err := h.Parent(ctx)
	if err != nil {
		return false, err
	}

	dir, ok := parent.(*AssembledHandler)
	if !ok {
		return false, data.IOFailure(data.ErrPermission, h.PathName())
	}
	return dir.RemoveChild(h.Name())
}

func (h *AssembledHandler) directory(name string) (*AssembledHandler, error) {
	h.mu.RLock()
	for _, child := range h.children {
		if child.handler.Name() != name {
			continue
		}
		h.mu.RUnlock()

		dir, ok := child.handler.(*AssembledHandler)
		if !ok {
			return nil, fmt.Errorf("%w: '%s'", data.ErrNotDirectory, data.JoinPath(h.PathName(), name))
		}
		return dir, nil
	}
	h.mu.RUnlock()

	return h.Mkdir(name)
}

func (h *AssembledHandler) add(child vfs.Handler) error {
	ref, err := child.VirtualFile()
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, existing := range h.children {
		if existing.handler.Name() == child.Name() {
			ref.Close()
			return fmt.Errorf("%w: '%s'", data.ErrExist, child.PathName())
		}
	}

	h.children = append(h.children, assembledChild{handler: child, ref: ref})
	h.modTime = time.Now()
	return nil
}

func (h *AssembledHandler) releaseChildren() error {
	h.mu.Lock()
	children := h.children
	h.children = nil
	h.mu.Unlock()

	errs := &data.Errors{}
	for _, child := range children {
		errs.Add(child.ref.Close())
	}
	return errs.Errors()
}

func validChildName(name string) error {
	if name == "" || data.IsSpecialToken(name) || len(data.TokenizePath(name)) != 1 {
		return data.InvalidPath(name)
	}
	return nil
}
