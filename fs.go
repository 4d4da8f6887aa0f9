package vfs

import (
	"context"
)

// FS is a path-oriented facade over a single context.
// Every returned VirtualFile must be closed by the caller.
type FS struct {
	context Context
}

func (fs *FS) Context() Context {
	return fs.context
}

func (fs *FS) Root(ctx context.Context) (*VirtualFile, error) {
	root, err := fs.context.Root(ctx)
	if err != nil {
		return nil, err
	}
	return root.VirtualFile()
}

// Child resolves path relative to the root.
func (fs *FS) Child(ctx context.Context, path string) (*VirtualFile, error) {
	root, err := fs.context.Root(ctx)
	if err != nil {
		return nil, err
	}

	child, err := fs.context.FindChild(ctx, root, path)
	if err != nil {
		return nil, err
	}
	return child.VirtualFile()
}

func (fs *FS) Children(ctx context.Context, path string) ([]*VirtualFile, error) {
	vf, err := fs.Child(ctx, path)
	if err != nil {
		return nil, err
	}
	defer vf.Close()

	return vf.Children(ctx)
}

func (fs *FS) Visit(ctx context.Context, path string, visitor Visitor) error {
	vf, err := fs.Child(ctx, path)
	if err != nil {
		return err
	}
	defer vf.Close()

	return vf.Visit(ctx, visitor)
}
