package direct

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend"
)

// DirectBackend serves a directory on the local disk.
type DirectBackend struct {
	mu       sync.RWMutex
	path     string
	readOnly bool
}

func NewDirectBackend(path string, readOnly bool) (*DirectBackend, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, data.InvalidPath(path)
	}

	return &DirectBackend{
		path:     filepath.Clean(abs),
		readOnly: readOnly,
	}, nil
}

// Returns the identifier name defined for this backend
func (*DirectBackend) Name() string {
	return "direct"
}

// Path returns the absolute root directory.
func (db *DirectBackend) Path() string {
	return db.path
}

// Open verifies that the root exists.
func (db *DirectBackend) Open(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := os.Stat(db.path); err != nil {
		return toError(err, db.path)
	}

	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (db *DirectBackend) Close(ctx context.Context) error {
	// The underlying filesystem persists independently
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (db *DirectBackend) GetCapabilities() *backend.BackendCapabilities {
	caps := []backend.BackendCapability{
		backend.CapabilityRead,
		backend.CapabilityModifyTime,
	}
	if !db.readOnly {
		caps = append(caps, backend.CapabilityWrite, backend.CapabilityDelete)
	}

	return &backend.BackendCapabilities{
		Capabilities: caps,
		// Filesystem limits vary by OS, but we set a practical limit
		// of 10GB for typical VFS use cases.
		MaxObjectSize: 10737418240,
	}
}

func (db *DirectBackend) IsReadOnly() bool {
	return db.readOnly
}

// resolvePath joins the backend path with the relative key.
func (db *DirectBackend) resolvePath(key string) string {
	return filepath.Join(db.path, filepath.FromSlash(key))
}

// toFileStat converts os.FileInfo to a FileStat.
func (db *DirectBackend) toFileStat(key string, fileInfo os.FileInfo) *data.FileStat {
	stat := &data.FileStat{
		Key:  key,
		Size: fileInfo.Size(),
		Mode: data.FromFileMode(fileInfo.Mode()),

		ModifyTime:  fileInfo.ModTime(),
		CreateTime:  fileInfo.ModTime(),
		ContentType: data.GetMIMEType(fileInfo.Name()),
	}
	if fileInfo.IsDir() {
		stat.Size = 0
		stat.ContentType = data.ContentTypeDirectory
	}
	return stat
}

func toError(err error, path string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return data.NotFound(path)
	case errors.Is(err, fs.ErrPermission):
		return data.ErrPermission
	case errors.Is(err, fs.ErrExist):
		return data.ErrExist
	}
	return err
}
