package archive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mwantia/vfs/v2/data"
)

// lookupUnsafe MUST be called while holding at least a read lock.
func (ab *ArchiveBackend) lookupUnsafe(key string) (*entry, error) {
	if ab.closed {
		return nil, data.Closed(ab.name)
	}
	if key == "" {
		return &entry{stat: data.NewDirectoryStat("", ab.modTime)}, nil
	}

	e, exists := ab.entries.Get(key)
	if !exists {
		return nil, data.NotFound(key)
	}
	return e, nil
}

func (ab *ArchiveBackend) Stat(ctx context.Context, key string) (*data.FileStat, error) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	e, err := ab.lookupUnsafe(key)
	if err != nil {
		return nil, err
	}

	copied := *e.stat
	return &copied, nil
}

func (ab *ArchiveBackend) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	e, err := ab.lookupUnsafe(key)
	if err != nil {
		return nil, err
	}
	if e.file == nil {
		return nil, data.ErrIsDirectory
	}

	rc, err := e.file.Open()
	if err != nil {
		return nil, data.IOFailure(err, key)
	}
	return rc, nil
}

func (ab *ArchiveBackend) ListObjects(ctx context.Context, key string) ([]*data.FileStat, error) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	e, err := ab.lookupUnsafe(key)
	if err != nil {
		return nil, err
	}
	if !e.stat.IsDir() {
		return nil, data.ErrNotDirectory
	}

	prefix := ""
	if key != "" {
		prefix = key + data.Separator
	}

	var stats []*data.FileStat
	ab.entries.Ascend(prefix, func(k string, child *entry) bool {
		if !strings.HasPrefix(k, prefix) {
			return false
		}
		if !strings.Contains(k[len(prefix):], data.Separator) {
			copied := *child.stat
			stats = append(stats, &copied)
		}
		return true
	})

	return stats, nil
}

func (ab *ArchiveBackend) DeleteObject(ctx context.Context, key string, force bool) error {
	return data.ErrReadOnly
}

func crcTag(crc uint32) string {
	return fmt.Sprintf("crc32:%08x", crc)
}
