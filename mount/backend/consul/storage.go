package consul

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/mwantia/vfs/v2/data"
)

func (cb *ConsulBackend) Stat(ctx context.Context, key string) (*data.FileStat, error) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return cb.statUnsafe(ctx, key)
}

func (cb *ConsulBackend) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if key != "" {
		pair, _, err := cb.kv.Get(cb.buildKey(key), queryOptions(ctx))
		if err != nil {
			return nil, data.IOFailure(err, key)
		}
		if pair != nil {
			return io.NopCloser(bytes.NewReader(pair.Value)), nil
		}
	}

	if _, err := cb.statUnsafe(ctx, key); err != nil {
		return nil, err
	}
	return nil, data.ErrIsDirectory
}

func (cb *ConsulBackend) ListObjects(ctx context.Context, key string) ([]*data.FileStat, error) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	stat, err := cb.statUnsafe(ctx, key)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, data.ErrNotDirectory
	}

	prefix := cb.dirPrefix(key)
	pairs, _, err := cb.kv.List(prefix, queryOptions(ctx))
	if err != nil {
		return nil, data.IOFailure(err, key)
	}

	children := make(map[string]*data.FileStat)
	for _, pair := range pairs {
		rel := strings.TrimPrefix(pair.Key, prefix)
		if rel == "" {
			continue
		}

		name, rest, nested := strings.Cut(rel, "/")
		childKey := data.JoinPath(key, name)
		if !nested {
			children[name] = fileStat(childKey, pair)
			continue
		}

		child, exists := children[name]
		if !exists {
			child = data.NewDirectoryStat(childKey, cb.created)
			children[name] = child
		}
		if rest == "" && pair.Flags != 0 {
			child.ModifyTime = time.Unix(0, int64(pair.Flags))
			child.CreateTime = child.ModifyTime
		}
	}

	stats := make([]*data.FileStat, 0, len(children))
	for _, child := range children {
		stats = append(stats, child)
	}
	slices.SortFunc(stats, func(a, b *data.FileStat) int {
		return strings.Compare(a.Key, b.Key)
	})
	return stats, nil
}

func (cb *ConsulBackend) DeleteObject(ctx context.Context, key string, force bool) error {
	if key == "" {
		return data.ErrPermission
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	stat, err := cb.statUnsafe(ctx, key)
	if err != nil {
		return err
	}

	if !stat.IsDir() {
		if _, err := cb.kv.Delete(cb.buildKey(key), writeOptions(ctx)); err != nil {
			return data.IOFailure(err, key)
		}
		return nil
	}

	prefix := cb.dirPrefix(key)
	if !force {
		keys, _, err := cb.kv.Keys(prefix, "/", queryOptions(ctx))
		if err != nil {
			return data.IOFailure(err, key)
		}
		for _, k := range keys {
			if k != prefix {
				return data.ErrDirectoryNotEmpty
			}
		}
	}

	if _, err := cb.kv.DeleteTree(prefix, writeOptions(ctx)); err != nil {
		return data.IOFailure(err, key)
	}
	return nil
}

func (cb *ConsulBackend) WriteObject(ctx context.Context, key string, r io.Reader) (*data.FileStat, error) {
	if key == "" {
		return nil, data.ErrIsDirectory
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > cb.GetCapabilities().MaxObjectSize {
		return nil, data.ErrInvalid
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if existing, err := cb.statUnsafe(ctx, key); err == nil && existing.IsDir() {
		return nil, data.ErrIsDirectory
	}
	if err := cb.checkParentsUnsafe(ctx, data.ParentPath(key)); err != nil {
		return nil, err
	}

	now := cb.now()
	pair := &api.KVPair{
		Key:   cb.buildKey(key),
		Value: content,
		Flags: uint64(now.UnixNano()),
	}
	if _, err := cb.kv.Put(pair, writeOptions(ctx)); err != nil {
		return nil, data.IOFailure(err, key)
	}

	return data.NewFileStat(key, int64(len(content)), now), nil
}

func (cb *ConsulBackend) MkdirAll(ctx context.Context, key string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err := cb.checkParentsUnsafe(ctx, key); err != nil {
		return err
	}

	tokens := data.TokenizePath(key)
	for i := range tokens {
		current := strings.Join(tokens[:i+1], data.Separator)
		folder := cb.dirPrefix(current)

		pair, _, err := cb.kv.Get(folder, queryOptions(ctx))
		if err != nil {
			return data.IOFailure(err, current)
		}
		if pair != nil {
			continue
		}

		pair = &api.KVPair{Key: folder, Flags: uint64(cb.now().UnixNano())}
		if _, err := cb.kv.Put(pair, writeOptions(ctx)); err != nil {
			return data.IOFailure(err, current)
		}
	}
	return nil
}

// statUnsafe resolves key against file keys, folder keys and implicit prefixes.
// MUST be called while holding at least a read lock.
func (cb *ConsulBackend) statUnsafe(ctx context.Context, key string) (*data.FileStat, error) {
	if key == "" {
		return data.NewDirectoryStat("", cb.created), nil
	}

	pair, _, err := cb.kv.Get(cb.buildKey(key), queryOptions(ctx))
	if err != nil {
		return nil, data.IOFailure(err, key)
	}
	if pair != nil {
		return fileStat(key, pair), nil
	}

	prefix := cb.dirPrefix(key)
	folder, _, err := cb.kv.Get(prefix, queryOptions(ctx))
	if err != nil {
		return nil, data.IOFailure(err, key)
	}
	if folder != nil {
		stat := data.NewDirectoryStat(key, cb.created)
		if folder.Flags != 0 {
			stat.ModifyTime = time.Unix(0, int64(folder.Flags))
			stat.CreateTime = stat.ModifyTime
		}
		return stat, nil
	}

	keys, _, err := cb.kv.Keys(prefix, "/", queryOptions(ctx))
	if err != nil {
		return nil, data.IOFailure(err, key)
	}
	if len(keys) > 0 {
		return data.NewDirectoryStat(key, cb.created), nil
	}
	return nil, data.NotFound(key)
}

// checkParentsUnsafe fails when a file occupies any segment of dir.
// MUST be called while holding a write lock.
func (cb *ConsulBackend) checkParentsUnsafe(ctx context.Context, dir string) error {
	tokens := data.TokenizePath(dir)
	for i := range tokens {
		current := strings.Join(tokens[:i+1], data.Separator)

		pair, _, err := cb.kv.Get(cb.buildKey(current), queryOptions(ctx))
		if err != nil {
			return data.IOFailure(err, current)
		}
		if pair != nil {
			return data.ErrNotDirectory
		}
	}
	return nil
}

// now returns a strictly increasing timestamp so rapid writes stay distinguishable.
// MUST be called while holding a write lock.
func (cb *ConsulBackend) now() time.Time {
	now := time.Now()
	if !now.After(cb.last) {
		now = cb.last.Add(time.Nanosecond)
	}
	cb.last = now
	return now
}

func fileStat(key string, pair *api.KVPair) *data.FileStat {
	modTime := time.Time{}
	if pair.Flags != 0 {
		modTime = time.Unix(0, int64(pair.Flags))
	}
	return data.NewFileStat(key, int64(len(pair.Value)), modTime)
}

func queryOptions(ctx context.Context) *api.QueryOptions {
	return (&api.QueryOptions{}).WithContext(ctx)
}

func writeOptions(ctx context.Context) *api.WriteOptions {
	return (&api.WriteOptions{}).WithContext(ctx)
}
