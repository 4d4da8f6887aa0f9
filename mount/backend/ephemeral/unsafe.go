package ephemeral

import (
	"strings"

	"github.com/mwantia/vfs/v2/data"
)

// This file contains internal "unsafe" methods that perform operations without acquiring locks.
// These methods MUST only be called when the caller already holds the appropriate lock.

// statUnsafe resolves key; the empty key is the implicit root directory.
// MUST be called while holding at least a read lock.
func (eb *EphemeralBackend) statUnsafe(key string) (*data.FileStat, string, error) {
	if key == "" {
		return data.NewDirectoryStat("", eb.created), "", nil
	}

	id, exists := eb.keys.Get(key)
	if !exists {
		return nil, "", data.NotFound(key)
	}

	stat, exists := eb.stats[id]
	if !exists {
		return nil, "", data.NotFound(key)
	}

	return stat, id, nil
}

// putUnsafe stores stat under a new or existing ID.
// MUST be called while holding a write lock.
func (eb *EphemeralBackend) putUnsafe(stat *data.FileStat, content []byte) {
	id, exists := eb.keys.Get(stat.Key)
	if !exists {
		id = data.NewID()
		eb.keys.Set(stat.Key, id)
	}

	eb.stats[id] = stat
	if content != nil {
		eb.datas[id] = content
	} else {
		delete(eb.datas, id)
	}
}

// mkdirAllUnsafe creates key and every missing parent directory.
// MUST be called while holding a write lock.
func (eb *EphemeralBackend) mkdirAllUnsafe(key string) error {
	tokens := data.TokenizePath(key)
	for i := range tokens {
		current := strings.Join(tokens[:i+1], data.Separator)

		stat, _, err := eb.statUnsafe(current)
		if err == nil {
			if !stat.IsDir() {
				return data.ErrNotDirectory
			}
			continue
		}

		eb.putUnsafe(data.NewDirectoryStat(current, eb.now()), nil)
	}
	return nil
}

// childrenUnsafe returns all keys directly below dir in ascending order.
// MUST be called while holding at least a read lock.
func (eb *EphemeralBackend) childrenUnsafe(dir string) []string {
	prefix := ""
	if dir != "" {
		prefix = dir + data.Separator
	}

	var children []string
	eb.keys.Ascend(prefix, func(key, _ string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		if !strings.Contains(key[len(prefix):], data.Separator) {
			children = append(children, key)
		}
		return true
	})
	return children
}

// descendantsUnsafe returns dir and every key below it.
// MUST be called while holding at least a read lock.
func (eb *EphemeralBackend) descendantsUnsafe(dir string) []string {
	keys := []string{dir}
	prefix := dir + data.Separator
	eb.keys.Ascend(prefix, func(key, _ string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		keys = append(keys, key)
		return true
	})
	return keys
}
