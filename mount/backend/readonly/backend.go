// Package readonly wraps a file system so that it rejects every change.
package readonly

import (
	"context"
	"io"

	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend"
)

// ReadOnlyBackend passes all reads through to the wrapped file system.
// Deletes return data.ErrReadOnly and the write methods are not exposed.
type ReadOnlyBackend struct {
	fs backend.FileSystem
}

var _ backend.FileSystem = (*ReadOnlyBackend)(nil)

// Wrap returns fs itself if it is already read-only.
func Wrap(fs backend.FileSystem) backend.FileSystem {
	if fs.IsReadOnly() {
		return fs
	}
	return &ReadOnlyBackend{fs: fs}
}

// Unwrap returns the wrapped file system.
func (rob *ReadOnlyBackend) Unwrap() backend.FileSystem {
	return rob.fs
}

func (rob *ReadOnlyBackend) Name() string {
	return rob.fs.Name()
}

func (rob *ReadOnlyBackend) Open(ctx context.Context) error {
	return rob.fs.Open(ctx)
}

func (rob *ReadOnlyBackend) Close(ctx context.Context) error {
	return rob.fs.Close(ctx)
}

func (rob *ReadOnlyBackend) GetCapabilities() *backend.BackendCapabilities {
	return rob.fs.GetCapabilities()
}

func (rob *ReadOnlyBackend) Stat(ctx context.Context, key string) (*data.FileStat, error) {
	return rob.fs.Stat(ctx, key)
}

func (rob *ReadOnlyBackend) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	return rob.fs.OpenObject(ctx, key)
}

func (rob *ReadOnlyBackend) ListObjects(ctx context.Context, key string) ([]*data.FileStat, error) {
	return rob.fs.ListObjects(ctx, key)
}

func (rob *ReadOnlyBackend) DeleteObject(ctx context.Context, key string, force bool) error {
	return data.ErrReadOnly
}

func (rob *ReadOnlyBackend) IsReadOnly() bool {
	return true
}
