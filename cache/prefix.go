// Package cache provides context caches for the virtual file system.
package cache

import (
	"net/url"
	"strings"
	"sync"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/tidwall/btree"
)

// PrefixCache finds the context whose root is the longest prefix of a URI.
// Entries are kept until removed or flushed; there is no eviction.
type PrefixCache struct {
	mu       sync.RWMutex
	contexts *btree.Map[string, vfs.Context]
}

var _ vfs.Cache = (*PrefixCache)(nil)

func NewPrefixCache() *PrefixCache {
	return &PrefixCache{
		contexts: btree.NewMap[string, vfs.Context](0),
	}
}

func (pc *PrefixCache) FindContext(uri *url.URL) vfs.Context {
	if uri == nil {
		return nil
	}
	key := vfs.ContextKey(uri)

	pc.mu.RLock()
	defer pc.mu.RUnlock()

	// Prefixes sort before the key and longer ones before shorter ones.
	var found vfs.Context
	pc.contexts.Descend(key, func(candidate string, c vfs.Context) bool {
		if !covers(candidate, key) || c.IsClosed() {
			return true
		}
		found = c
		return false
	})
	return found
}

func (pc *PrefixCache) PutContext(c vfs.Context) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.contexts.Set(c.Key(), c)
}

func (pc *PrefixCache) RemoveContext(c vfs.Context) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if current, ok := pc.contexts.Get(c.Key()); ok && current == c {
		pc.contexts.Delete(c.Key())
	}
}

func (pc *PrefixCache) Flush() {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	pc.contexts.Clear()
}

// Len returns the number of cached contexts.
func (pc *PrefixCache) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	return pc.contexts.Len()
}

func covers(root, key string) bool {
	if root == key {
		return true
	}
	if strings.HasSuffix(root, data.Separator) {
		return strings.HasPrefix(key, root)
	}
	return strings.HasPrefix(key, root+data.Separator)
}
