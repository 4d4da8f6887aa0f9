package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mwantia/vfs/v2/data"
)

// This file contains internal "unsafe" methods that perform operations without acquiring locks.
// These methods MUST only be called when the caller already holds the appropriate lock.

const metadataColumns = "key, mode, size, modify_time, create_time, content_type"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txn collects B-tree changes that only apply once the transaction commits.
type txn struct {
	tx      *sql.Tx
	added   map[string]string
	removed []string
}

func (sb *SQLiteBackend) beginUnsafe(ctx context.Context) (*txn, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txn{tx: tx, added: make(map[string]string)}, nil
}

// commitUnsafe commits t and applies its key changes to the B-tree.
// MUST be called while holding a write lock.
func (sb *SQLiteBackend) commitUnsafe(t *txn) error {
	if err := t.tx.Commit(); err != nil {
		return err
	}

	for _, key := range t.removed {
		sb.keys.Delete(key)
	}
	for key, id := range t.added {
		sb.keys.Set(key, id)
	}
	return nil
}

// lookupUnsafe returns the ID of key, including keys added by t.
// MUST be called while holding at least a read lock.
func (sb *SQLiteBackend) lookupUnsafe(t *txn, key string) (string, bool) {
	if t != nil {
		if id, ok := t.added[key]; ok {
			return id, true
		}
	}
	return sb.keys.Get(key)
}

// statUnsafe resolves key; the empty key is the implicit root directory.
// MUST be called while holding at least a read lock.
func (sb *SQLiteBackend) statUnsafe(ctx context.Context, t *txn, key string) (*data.FileStat, string, error) {
	if key == "" {
		return data.NewDirectoryStat("", sb.created), "", nil
	}

	id, exists := sb.lookupUnsafe(t, key)
	if !exists {
		return nil, "", data.NotFound(key)
	}

	var q querier = sb.db
	if t != nil {
		q = t.tx
	}

	stat, err := scanStat(q.QueryRowContext(ctx, "SELECT "+metadataColumns+" FROM vfs_metadata WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", data.NotFound(key)
	}
	if err != nil {
		return nil, "", err
	}
	return stat, id, nil
}

// insertUnsafe stores the metadata row of stat under id.
// MUST be called while holding a write lock.
func (sb *SQLiteBackend) insertUnsafe(ctx context.Context, t *txn, id string, stat *data.FileStat) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO vfs_metadata (id, key, parent, mode, size, modify_time, create_time, content_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, stat.Key, data.ParentPath(stat.Key), int64(stat.Mode), stat.Size,
		stat.ModifyTime.UnixNano(), stat.CreateTime.UnixNano(), string(stat.ContentType))
	if err != nil {
		return err
	}

	t.added[stat.Key] = id
	return nil
}

// mkdirAllUnsafe creates key and every missing parent directory.
// MUST be called while holding a write lock.
func (sb *SQLiteBackend) mkdirAllUnsafe(ctx context.Context, t *txn, key string) error {
	tokens := data.TokenizePath(key)
	for i := range tokens {
		current := strings.Join(tokens[:i+1], data.Separator)

		stat, _, err := sb.statUnsafe(ctx, t, current)
		if err == nil {
			if !stat.IsDir() {
				return data.ErrNotDirectory
			}
			continue
		}
		if !errors.Is(err, data.ErrNotExist) {
			return err
		}

		if err := sb.insertUnsafe(ctx, t, data.NewID(), data.NewDirectoryStat(current, sb.now())); err != nil {
			return err
		}
	}
	return nil
}

// touchUnsafe bumps the modify time of a directory after its listing changed.
// MUST be called while holding a write lock.
func (sb *SQLiteBackend) touchUnsafe(ctx context.Context, t *txn, dir string) error {
	if dir == "" {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, "UPDATE vfs_metadata SET modify_time = ? WHERE key = ?", sb.now().UnixNano(), dir)
	return err
}

// descendantsUnsafe returns key and every key below it.
// MUST be called while holding at least a read lock.
func (sb *SQLiteBackend) descendantsUnsafe(key string) []string {
	keys := []string{key}
	prefix := key + data.Separator
	sb.keys.Ascend(prefix, func(k, _ string) bool {
		if !strings.HasPrefix(k, prefix) {
			return false
		}
		keys = append(keys, k)
		return true
	})
	return keys
}

// now returns a strictly increasing timestamp so rapid writes stay distinguishable.
// MUST be called while holding a write lock.
func (sb *SQLiteBackend) now() time.Time {
	now := time.Now()
	if !now.After(sb.last) {
		now = sb.last.Add(time.Nanosecond)
	}
	sb.last = now
	return now
}

func scanStat(row interface{ Scan(dest ...any) error }) (*data.FileStat, error) {
	var stat data.FileStat
	var mode, modifyTime, createTime int64
	var contentType sql.NullString

	if err := row.Scan(&stat.Key, &mode, &stat.Size, &modifyTime, &createTime, &contentType); err != nil {
		return nil, err
	}

	stat.Mode = data.FileMode(mode)
	stat.ModifyTime = time.Unix(0, modifyTime)
	stat.CreateTime = time.Unix(0, createTime)
	if contentType.Valid {
		stat.ContentType = data.ContentType(contentType.String)
	}
	return &stat, nil
}

// escapeLike quotes the wildcards of a LIKE pattern for use with ESCAPE '\'.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
