package mount

import (
	"context"
	"io"
	"os"
	"time"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
)

// Mount is an archive exposed at a target location.
type Mount struct {
	ID        string
	Target    string
	Type      vfs.MountType
	MountTime time.Time

	root    vfs.Handler
	closer  io.Closer
	tempDir string
}

// Root returns the root of the mounted content.
func (m *Mount) Root() vfs.Handler {
	return m.root
}

// TempDir returns the private directory of this mount.
func (m *Mount) TempDir() string {
	return m.tempDir
}

// Close releases the mounted tree and removes its temp directory.
func (m *Mount) Close(ctx context.Context) error {
	errs := &data.Errors{}
	if m.closer != nil {
		errs.Add(m.closer.Close())
	}
	if m.tempDir != "" {
		errs.Add(os.RemoveAll(m.tempDir))
	}
	return errs.Errors()
}
