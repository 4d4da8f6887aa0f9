package ephemeral

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/mwantia/vfs/v2/data"
)

func (eb *EphemeralBackend) Stat(ctx context.Context, key string) (*data.FileStat, error) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	stat, _, err := eb.statUnsafe(key)
	if err != nil {
		return nil, err
	}

	copied := *stat
	return &copied, nil
}

func (eb *EphemeralBackend) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	stat, id, err := eb.statUnsafe(key)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, data.ErrIsDirectory
	}

	// Stored slices are replaced on write, never mutated in place
	return io.NopCloser(bytes.NewReader(eb.datas[id])), nil
}

func (eb *EphemeralBackend) ListObjects(ctx context.Context, key string) ([]*data.FileStat, error) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	stat, _, err := eb.statUnsafe(key)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, data.ErrNotDirectory
	}

	children := eb.childrenUnsafe(key)
	stats := make([]*data.FileStat, 0, len(children))
	for _, child := range children {
		if childStat, _, err := eb.statUnsafe(child); err == nil {
			copied := *childStat
			stats = append(stats, &copied)
		}
	}

	return stats, nil
}

func (eb *EphemeralBackend) DeleteObject(ctx context.Context, key string, force bool) error {
	if key == "" {
		return data.ErrPermission
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	stat, _, err := eb.statUnsafe(key)
	if err != nil {
		return err
	}

	if stat.IsDir() {
		if !force && len(eb.childrenUnsafe(key)) > 0 {
			return data.ErrDirectoryNotEmpty
		}
	}

	for _, k := range eb.descendantsUnsafe(key) {
		if id, ok := eb.keys.Delete(k); ok {
			delete(eb.stats, id)
			delete(eb.datas, id)
		}
	}
	eb.touchUnsafe(data.ParentPath(key))

	return nil
}

func (eb *EphemeralBackend) WriteObject(ctx context.Context, key string, r io.Reader) (*data.FileStat, error) {
	if key == "" {
		return nil, data.ErrIsDirectory
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > eb.GetCapabilities().MaxObjectSize {
		return nil, data.ErrInvalid
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if existing, _, err := eb.statUnsafe(key); err == nil && existing.IsDir() {
		return nil, data.ErrIsDirectory
	}
	if err := eb.mkdirAllUnsafe(data.ParentPath(key)); err != nil {
		return nil, err
	}

	stat := data.NewFileStat(key, int64(len(content)), eb.now())
	eb.putUnsafe(stat, content)
	eb.touchUnsafe(data.ParentPath(key))

	copied := *stat
	return &copied, nil
}

func (eb *EphemeralBackend) MkdirAll(ctx context.Context, key string) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	return eb.mkdirAllUnsafe(key)
}

// touchUnsafe bumps the modify time of a directory after its listing changed.
// MUST be called while holding a write lock.
func (eb *EphemeralBackend) touchUnsafe(dir string) {
	if dir == "" {
		return
	}
	if stat, _, err := eb.statUnsafe(dir); err == nil {
		stat.ModifyTime = eb.now()
	}
}

// now returns a strictly increasing timestamp so rapid writes stay distinguishable.
// MUST be called while holding a write lock.
func (eb *EphemeralBackend) now() time.Time {
	now := time.Now()
	if !now.After(eb.last) {
		now = eb.last.Add(time.Nanosecond)
	}
	eb.last = now
	return now
}
