package vfs

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/refcount"
)

// VirtualFile is a lightweight view on a shared Handler.
// Every view holds one reference and must be closed by its owner.
type VirtualFile struct {
	handler Handler
	handle  *refcount.Handle[Handler]
}

// Handler returns the handler behind this view.
func (vf *VirtualFile) Handler() Handler {
	return vf.handler
}

func (vf *VirtualFile) check() error {
	if vf.handle.IsClosed() {
		return data.Closed("virtual file '" + vf.handler.PathName() + "'")
	}
	return nil
}

func (vf *VirtualFile) Name() string {
	return vf.handler.Name()
}

func (vf *VirtualFile) PathName() string {
	return vf.handler.PathName()
}

func (vf *VirtualFile) Context() Context {
	return vf.handler.Context()
}

// Close releases this view's reference. Repeated calls are no-ops.
func (vf *VirtualFile) Close() error {
	return vf.handle.Close()
}

func (vf *VirtualFile) IsClosed() bool {
	return vf.handle.IsClosed() || vf.handler.IsClosed()
}

// Clone returns a second, independently closeable view of the same handler.
func (vf *VirtualFile) Clone() (*VirtualFile, error) {
	if err := vf.check(); err != nil {
		return nil, err
	}
	return vf.handler.VirtualFile()
}

func (vf *VirtualFile) Equal(other *VirtualFile) bool {
	if other == nil {
		return false
	}
	return Equal(vf.handler, other.handler)
}

func (vf *VirtualFile) String() string {
	if uri, err := vf.handler.URI(); err == nil {
		return uri.String()
	}
	return vf.handler.PathName()
}

func (vf *VirtualFile) IsLeaf(ctx context.Context) (bool, error) {
	if err := vf.check(); err != nil {
		return false, err
	}
	return vf.handler.IsLeaf(ctx)
}

func (vf *VirtualFile) IsHidden(ctx context.Context) (bool, error) {
	if err := vf.check(); err != nil {
		return false, err
	}
	return vf.handler.IsHidden(ctx)
}

func (vf *VirtualFile) Exists(ctx context.Context) (bool, error) {
	if err := vf.check(); err != nil {
		return false, err
	}
	return vf.handler.Exists(ctx)
}

func (vf *VirtualFile) Size(ctx context.Context) (int64, error) {
	if err := vf.check(); err != nil {
		return 0, err
	}
	return vf.handler.Size(ctx)
}

func (vf *VirtualFile) LastModified(ctx context.Context) (time.Time, error) {
	if err := vf.check(); err != nil {
		return time.Time{}, err
	}
	return vf.handler.LastModified(ctx)
}

func (vf *VirtualFile) HasBeenModified(ctx context.Context) (bool, error) {
	if err := vf.check(); err != nil {
		return false, err
	}
	return vf.handler.HasBeenModified(ctx)
}

func (vf *VirtualFile) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := vf.check(); err != nil {
		return nil, err
	}
	return vf.handler.Open(ctx)
}

// ReadAll returns the whole content of a leaf.
func (vf *VirtualFile) ReadAll(ctx context.Context) ([]byte, error) {
	rc, err := vf.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

func (vf *VirtualFile) URI() (*url.URL, error) {
	if err := vf.check(); err != nil {
		return nil, err
	}
	return vf.handler.URI()
}

func (vf *VirtualFile) URL(ctx context.Context) (string, error) {
	if err := vf.check(); err != nil {
		return "", err
	}
	return vf.handler.URL(ctx)
}

func (vf *VirtualFile) Delete(ctx context.Context, gracePeriod time.Duration) (bool, error) {
	if err := vf.check(); err != nil {
		return false, err
	}
	return vf.handler.Delete(ctx, gracePeriod)
}

// Parent returns a new view of the parent, or nil for a top-level file.
func (vf *VirtualFile) Parent(ctx context.Context) (*VirtualFile, error) {
	if err := vf.check(); err != nil {
		return nil, err
	}

	parent, err := vf.handler.Parent(ctx)
	if err != nil || parent == nil {
		return nil, err
	}
	return parent.VirtualFile()
}

// FindChild resolves path below this file and returns a new view.
func (vf *VirtualFile) FindChild(ctx context.Context, path string) (*VirtualFile, error) {
	if err := vf.check(); err != nil {
		return nil, err
	}

	child, err := vf.handler.Context().FindChild(ctx, vf.handler, path)
	if err != nil {
		return nil, err
	}
	return child.VirtualFile()
}

// Children returns new views of the direct children.
func (vf *VirtualFile) Children(ctx context.Context) ([]*VirtualFile, error) {
	return vf.ChildrenFiltered(ctx, nil)
}

// ChildrenFiltered returns new views of the direct children accepted by filter.
func (vf *VirtualFile) ChildrenFiltered(ctx context.Context, filter func(*VirtualFile) bool) ([]*VirtualFile, error) {
	if err := vf.check(); err != nil {
		return nil, err
	}

	leaf, err := vf.handler.IsLeaf(ctx)
	if err != nil {
		return nil, err
	}
	if leaf {
		return nil, nil
	}

	visitor := NewCollectingVisitor(ChildrenAttributes)
	visitor.Filter = filter
	if err := vf.Visit(ctx, visitor); err != nil {
		visitor.Close()
		return nil, err
	}
	return visitor.Files(), nil
}

// ChildrenRecursively returns new views of every descendant.
func (vf *VirtualFile) ChildrenRecursively(ctx context.Context) ([]*VirtualFile, error) {
	if err := vf.check(); err != nil {
		return nil, err
	}

	visitor := NewCollectingVisitor(RecursiveAttributes)
	if err := vf.Visit(ctx, visitor); err != nil {
		visitor.Close()
		return nil, err
	}
	return visitor.Files(), nil
}

// Visit walks the tree below this file.
func (vf *VirtualFile) Visit(ctx context.Context, visitor Visitor) error {
	if err := vf.check(); err != nil {
		return err
	}
	return vf.handler.Context().Visit(ctx, vf.handler, visitor)
}

// Identity returns the stable identity used to re-resolve this file later.
func (vf *VirtualFile) Identity() (Identity, error) {
	if err := vf.check(); err != nil {
		return Identity{}, err
	}
	return IdentityOf(vf.handler), nil
}

// CloseAll closes every file and joins the failures.
func CloseAll(files []*VirtualFile) error {
	errs := &data.Errors{}
	for _, vf := range files {
		if vf != nil {
			errs.Add(vf.Close())
		}
	}
	return errs.Errors()
}
