package vfs

import (
	"context"
	"io"
	"net/url"
	"time"
)

// HandlerKind tags the closed set of handler variants.
type HandlerKind int

const (
	KindFile HandlerKind = iota
	KindArchive
	KindMemory
	KindAssembled
	KindLink
	KindDelegate
)

func (k HandlerKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindArchive:
		return "archive"
	case KindMemory:
		return "memory"
	case KindAssembled:
		return "assembled"
	case KindLink:
		return "link"
	case KindDelegate:
		return "delegate"
	default:
		return "unknown"
	}
}

// Handler is the tree node behind every virtual file.
//
// Handlers are created on demand by their context or by a parent handler
// and are shared between all VirtualFile views of the same node. Every
// implementation embeds BaseHandler.
type Handler interface {
	// Name returns the last segment of the path name; empty for a root.
	Name() string
	// PathName returns the path of this node as seen through the VFS.
	PathName() string
	// LocalPath returns the path relative to the root of the owning context.
	LocalPath() string
	Kind() HandlerKind
	Context() Context
	// Parent returns nil without error for a top-level handler.
	Parent(ctx context.Context) (Handler, error)

	IsLeaf(ctx context.Context) (bool, error)
	IsHidden(ctx context.Context) (bool, error)
	Exists(ctx context.Context) (bool, error)
	Size(ctx context.Context) (int64, error)
	LastModified(ctx context.Context) (time.Time, error)
	// HasBeenModified compares a fresh modification time against the cached one.
	HasBeenModified(ctx context.Context) (bool, error)
	Open(ctx context.Context) (io.ReadCloser, error)

	Children(ctx context.Context, ignoreErrors bool) ([]Handler, error)
	FindChild(ctx context.Context, path string) (Handler, error)

	URI() (*url.URL, error)
	// URL is the URI string with a trailing slash for non-leaf nodes.
	URL(ctx context.Context) (string, error)
	Delete(ctx context.Context, gracePeriod time.Duration) (bool, error)

	// VirtualFile acquires a new reference and returns a view sharing this handler.
	VirtualFile() (*VirtualFile, error)
	IsClosed() bool

	base() *BaseHandler
}

// StructuredHandler resolves exactly one path segment at a time.
type StructuredHandler interface {
	Handler

	// CreateChild returns the direct child called name, creating it if needed.
	CreateChild(ctx context.Context, name string) (Handler, error)
}

// ParentRef locates a parent handler by key instead of holding it.
// The zero value means "no parent".
type ParentRef struct {
	Context Context
	Path    string
}

func (r ParentRef) IsZero() bool {
	return r.Context == nil
}

// RefOf returns the reference pointing at h.
func RefOf(h Handler) ParentRef {
	if h == nil {
		return ParentRef{}
	}
	return ParentRef{Context: h.Context(), Path: h.LocalPath()}
}

// Resolve looks the referenced handler up in its context.
func (r ParentRef) Resolve(ctx context.Context) (Handler, error) {
	if r.IsZero() {
		return nil, nil
	}
	return r.Context.Lookup(ctx, r.Path)
}

// HandlerKey is the identity of a handler: its context and its path name.
type HandlerKey struct {
	Context string
	Path    string
}

func KeyOf(h Handler) HandlerKey {
	return HandlerKey{Context: h.Context().Key(), Path: h.PathName()}
}

// Equal reports whether a and b denote the same node of the same context,
// regardless of whether they are the same object.
func Equal(a, b Handler) bool {
	if a == nil || b == nil {
		return a == b
	}
	return KeyOf(a) == KeyOf(b)
}
