package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/mwantia/vfs/v2/mount/backend"
	"github.com/tidwall/btree"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteBackend stores a whole tree inside a SQLite database:
//
// Layer 1: In-memory B-tree for fast key → ID lookups (keys map)
// Layer 2: SQLite metadata table (vfs_metadata) with one row per file or directory
// Layer 3: SQLite data table (vfs_data) for the content of regular files
type SQLiteBackend struct {
	mu sync.RWMutex
	db *sql.DB

	path    string
	created time.Time
	last    time.Time

	// In-memory B-tree for fast key lookups
	keys *btree.Map[string, string]
}

// NewSQLiteBackend opens the database at dbPath, which may be MemoryPath.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if dbPath == MemoryPath {
		// Every connection would see its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	sb := &SQLiteBackend{
		db:      db,
		path:    dbPath,
		created: time.Now(),
		keys:    btree.NewMap[string, string](0),
	}

	if err := sb.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return sb, nil
}

// initSchema creates the database schema.
func (sb *SQLiteBackend) initSchema() error {
	schema := `
	-- Metadata storage
	CREATE TABLE IF NOT EXISTS vfs_metadata (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		parent TEXT NOT NULL,
		mode INTEGER NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		modify_time INTEGER NOT NULL,
		create_time INTEGER NOT NULL,
		content_type TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_vfs_metadata_parent ON vfs_metadata(parent);

	-- Content storage
	CREATE TABLE IF NOT EXISTS vfs_data (
		id TEXT PRIMARY KEY,
		content BLOB NOT NULL
	);
	`

	_, err := sb.db.Exec(schema)
	return err
}

// Returns the identifier name defined for this backend
func (*SQLiteBackend) Name() string {
	return "sqlite"
}

// Path returns the database location.
func (sb *SQLiteBackend) Path() string {
	return sb.path
}

// Open verifies the connection and loads all keys into the B-tree.
func (sb *SQLiteBackend) Open(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if err := sb.db.PingContext(ctx); err != nil {
		return err
	}

	rows, err := sb.db.QueryContext(ctx, "SELECT key, id FROM vfs_metadata")
	if err != nil {
		return err
	}
	defer rows.Close()

	sb.keys.Clear()
	for rows.Next() {
		var key, id string
		if err := rows.Scan(&key, &id); err != nil {
			return err
		}
		sb.keys.Set(key, id)
	}

	return rows.Err()
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (sb *SQLiteBackend) Close(ctx context.Context) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.keys.Clear()
	return sb.db.Close()
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (sb *SQLiteBackend) GetCapabilities() *backend.BackendCapabilities {
	caps := []backend.BackendCapability{
		backend.CapabilityRead,
		backend.CapabilityWrite,
		backend.CapabilityDelete,
		backend.CapabilityModifyTime,
	}
	if sb.path == MemoryPath {
		caps = append(caps, backend.CapabilityEphemeral)
	}

	return &backend.BackendCapabilities{
		Capabilities: caps,
		// SQLite's default SQLITE_MAX_LENGTH for a single BLOB
		MaxObjectSize: 1000000000,
	}
}

func (sb *SQLiteBackend) IsReadOnly() bool {
	return false
}
