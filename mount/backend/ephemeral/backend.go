package ephemeral

import (
	"context"
	"sync"
	"time"

	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend"
	"github.com/tidwall/btree"
)

// EphemeralBackend keeps a whole tree in memory.
//
// Keys are indexed in an ordered B-tree mapping key → object ID so that a
// directory listing is a single ascending scan over its prefix.
type EphemeralBackend struct {
	mu sync.RWMutex

	created time.Time
	last    time.Time

	keys  *btree.Map[string, string]
	stats map[string]*data.FileStat
	datas map[string][]byte
}

func NewEphemeralBackend() *EphemeralBackend {
	return &EphemeralBackend{
		created: time.Now(),
		keys:    btree.NewMap[string, string](0),
		stats:   make(map[string]*data.FileStat),
		datas:   make(map[string][]byte),
	}
}

// Returns the identifier name defined for this backend
func (*EphemeralBackend) Name() string {
	return "ephemeral"
}

// Open is part of the lifecycle behaviour and gets called when opening this backend.
func (eb *EphemeralBackend) Open(ctx context.Context) error {
	// No initialization needed - backend is ready to use
	return nil
}

// Close drops all stored objects.
func (eb *EphemeralBackend) Close(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.keys.Clear()
	clear(eb.stats)
	clear(eb.datas)

	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (eb *EphemeralBackend) GetCapabilities() *backend.BackendCapabilities {
	return &backend.BackendCapabilities{
		Capabilities: []backend.BackendCapability{
			backend.CapabilityRead,
			backend.CapabilityWrite,
			backend.CapabilityDelete,
			backend.CapabilityModifyTime,
			backend.CapabilityEphemeral,
		},
		MaxObjectSize: 10485760, // 10 MB
	}
}

func (eb *EphemeralBackend) IsReadOnly() bool {
	return false
}
