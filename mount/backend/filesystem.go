package backend

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/mwantia/vfs/v2/data"
)

// FileSystem is the byte-level capability each backed handler delegates to.
// All keys are canonical paths relative to the backend root without '.' or
// '..' segments; the empty key addresses the root itself.
type FileSystem interface {
	Backend

	// Stat returns the description of key, or data.ErrNotExist.
	Stat(ctx context.Context, key string) (*data.FileStat, error)

	// OpenObject returns a stream over the content of a regular file.
	OpenObject(ctx context.Context, key string) (io.ReadCloser, error)

	// ListObjects returns the direct children of the directory key.
	ListObjects(ctx context.Context, key string) ([]*data.FileStat, error)

	// DeleteObject removes key; directories require force.
	DeleteObject(ctx context.Context, key string, force bool) error

	IsReadOnly() bool
}

// WritableFileSystem is implemented by backends that accept new content.
type WritableFileSystem interface {
	FileSystem

	// WriteObject replaces the content of key, creating missing parent directories.
	WriteObject(ctx context.Context, key string, r io.Reader) (*data.FileStat, error)

	// MkdirAll creates key and all missing parents.
	MkdirAll(ctx context.Context, key string) error
}

// Exists reports whether key is present.
func Exists(ctx context.Context, fs FileSystem, key string) (bool, error) {
	if _, err := fs.Stat(ctx, key); err != nil {
		if errors.Is(err, data.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func IsDirectory(ctx context.Context, fs FileSystem, key string) (bool, error) {
	stat, err := fs.Stat(ctx, key)
	if err != nil {
		return false, err
	}
	return stat.IsDir(), nil
}

func Size(ctx context.Context, fs FileSystem, key string) (int64, error) {
	stat, err := fs.Stat(ctx, key)
	if err != nil {
		return 0, err
	}
	return stat.Size, nil
}

func LastModified(ctx context.Context, fs FileSystem, key string) (time.Time, error) {
	stat, err := fs.Stat(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	return stat.ModifyTime, nil
}

// Names returns the names of the direct children of key.
func Names(ctx context.Context, fs FileSystem, key string) ([]string, error) {
	stats, err := fs.ListObjects(ctx, key)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(stats))
	for _, stat := range stats {
		names = append(names, stat.Name())
	}
	return names, nil
}

// ReadAll reads the whole content of key.
func ReadAll(ctx context.Context, fs FileSystem, key string) ([]byte, error) {
	r, err := fs.OpenObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
