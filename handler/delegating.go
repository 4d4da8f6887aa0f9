package handler

import (
	"context"
	"io"
	"time"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
)

// DelegatingHandler presents another handler under a new name and parent.
//
// The delegate is kept as a reference and resolved again through its own
// context whenever it has been torn down in the meantime.
type DelegatingHandler struct {
	vfs.BaseHandler

	delegateRef vfs.ParentRef
}

// NewDelegatingHandler places delegate below parent as name.
func NewDelegatingHandler(parent vfs.Handler, name string, delegate vfs.Handler) *DelegatingHandler {
	h := &DelegatingHandler{
		delegateRef: vfs.RefOf(delegate),
	}
	h.Init(h, vfs.HandlerConfig{
		Name:          name,
		Kind:          vfs.KindDelegate,
		Context:       parent.Context(),
		LocalPath:     data.JoinPath(parent.LocalPath(), name),
		ParentHandler: parent,
	})
	parent.Context().Remember(h)
	return h
}

// Delegate returns the handler this one presents.
func (h *DelegatingHandler) Delegate(ctx context.Context) (vfs.Handler, error) {
	if err := h.CheckClosed(); err != nil {
		return nil, err
	}

	delegate, err := h.delegateRef.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if delegate == nil {
		return nil, data.NotFound(h.PathName())
	}
	return delegate, nil
}

func (h *DelegatingHandler) IsLeaf(ctx context.Context) (bool, error) {
	delegate, err := h.Delegate(ctx)
	if err != nil {
		return false, err
	}
	return delegate.IsLeaf(ctx)
}

func (h *DelegatingHandler) Exists(ctx context.Context) (bool, error) {
	delegate, err := h.Delegate(ctx)
	if err != nil {
		return false, err
	}
	return delegate.Exists(ctx)
}

func (h *DelegatingHandler) Size(ctx context.Context) (int64, error) {
	delegate, err := h.Delegate(ctx)
	if err != nil {
		return 0, err
	}
	return delegate.Size(ctx)
}

func (h *DelegatingHandler) LastModified(ctx context.Context) (time.Time, error) {
	delegate, err := h.Delegate(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return delegate.LastModified(ctx)
}

func (h *DelegatingHandler) Open(ctx context.Context) (io.ReadCloser, error) {
	delegate, err := h.Delegate(ctx)
	if err != nil {
		return nil, err
	}
	return delegate.Open(ctx)
}

func (h *DelegatingHandler) Children(ctx context.Context, ignoreErrors bool) ([]vfs.Handler, error) {
	delegate, err := h.Delegate(ctx)
	if err != nil {
		if ignoreErrors && data.Skippable(err) {
			return nil, nil
		}
		return nil, err
	}

	children, err := delegate.Children(ctx, ignoreErrors)
	if err != nil {
		return nil, err
	}

	wrapped := make([]vfs.Handler, 0, len(children))
	for _, child := range children {
		wrapped = append(wrapped, h.wrap(child.Name(), child))
	}
	return wrapped, nil
}

// CreateChild resolves name below the delegate and presents it below this handler.
func (h *DelegatingHandler) CreateChild(ctx context.Context, name string) (vfs.Handler, error) {
	delegate, err := h.Delegate(ctx)
	if err != nil {
		return nil, err
	}

	child, err := delegate.FindChild(ctx, name)
	if err != nil {
		return nil, err
	}
	return h.wrap(name, child), nil
}

func (h *DelegatingHandler) FindChild(ctx context.Context, path string) (vfs.Handler, error) {
	return vfs.FindChildStructured(ctx, h, path)
}

func (h *DelegatingHandler) Delete(ctx context.Context, gracePeriod time.Duration) (bool, error) {
	delegate, err := h.Delegate(ctx)
	if err != nil {
		return false, err
	}
	return delegate.Delete(ctx, gracePeriod)
}

// wrap reuses a live wrapper of the same child when there is one.
func (h *DelegatingHandler) wrap(name string, child vfs.Handler) vfs.Handler {
	localPath := data.JoinPath(h.LocalPath(), name)
	if recaller, ok := h.Context().(interface {
		Recall(string) (vfs.Handler, bool)
	}); ok {
		if existing, ok := recaller.Recall(localPath); ok {
			if wrapper, ok := existing.(*DelegatingHandler); ok && wrapper.delegateRef == vfs.RefOf(child) {
				return wrapper
			}
		}
	}
	return NewDelegatingHandler(h, name, child)
}
