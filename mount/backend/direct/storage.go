package direct

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/mwantia/vfs/v2/data"
)

func (db *DirectBackend) Stat(ctx context.Context, key string) (*data.FileStat, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	info, err := os.Stat(db.resolvePath(key))
	if err != nil {
		return nil, toError(err, key)
	}

	return db.toFileStat(key, info), nil
}

func (db *DirectBackend) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	fullPath := db.resolvePath(key)
	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, toError(err, key)
	}
	if info.IsDir() {
		return nil, data.ErrIsDirectory
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, toError(err, key)
	}

	return file, nil
}

func (db *DirectBackend) ListObjects(ctx context.Context, key string) ([]*data.FileStat, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	fullPath := db.resolvePath(key)

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, toError(err, key)
	}
	if !info.IsDir() {
		return nil, data.ErrNotDirectory
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, toError(err, key)
	}

	stats := make([]*data.FileStat, 0, len(entries))
	for _, entry := range entries {
		childInfo, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Info
			continue
		}

		stats = append(stats, db.toFileStat(data.JoinPath(key, entry.Name()), childInfo))
	}

	return stats, nil
}

func (db *DirectBackend) DeleteObject(ctx context.Context, key string, force bool) error {
	if db.readOnly {
		return data.ErrReadOnly
	}
	if key == "" {
		return data.ErrPermission
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	fullPath := db.resolvePath(key)

	info, err := os.Stat(fullPath)
	if err != nil {
		return toError(err, key)
	}

	if info.IsDir() {
		if force {
			return os.RemoveAll(fullPath)
		}

		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return toError(err, key)
		}
		if len(entries) > 0 {
			return data.ErrDirectoryNotEmpty
		}
	}

	return toError(os.Remove(fullPath), key)
}

// WriteObject writes r into a temp file next to key and renames it into place.
func (db *DirectBackend) WriteObject(ctx context.Context, key string, r io.Reader) (*data.FileStat, error) {
	if db.readOnly {
		return nil, data.ErrReadOnly
	}
	if key == "" {
		return nil, data.ErrIsDirectory
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	fullPath := db.resolvePath(key)
	if info, err := os.Stat(fullPath); err == nil && info.IsDir() {
		return nil, data.ErrIsDirectory
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, toError(err, key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".vfs-write-*")
	if err != nil {
		return nil, toError(err, key)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, toError(err, key)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, toError(err, key)
	}
	return db.toFileStat(key, info), nil
}

func (db *DirectBackend) MkdirAll(ctx context.Context, key string) error {
	if db.readOnly {
		return data.ErrReadOnly
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	return toError(os.MkdirAll(db.resolvePath(key), 0755), key)
}
