package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mwantia/vfs/v2/data"
)

// This file contains internal "unsafe" methods that perform operations without acquiring locks.
// These methods MUST only be called when the caller already holds the appropriate lock.

const metadataColumns = "key, mode, size, modify_time, create_time, content_type"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txn collects B-tree changes that only apply once the transaction commits.
type txn struct {
	tx      pgx.Tx
	added   map[string]string
	removed []string
}

func (pb *PostgresBackend) beginUnsafe(ctx context.Context) (*txn, error) {
	tx, err := pb.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txn{tx: tx, added: make(map[string]string)}, nil
}

// commitUnsafe commits t and applies its key changes to the B-tree.
// MUST be called while holding a write lock.
func (pb *PostgresBackend) commitUnsafe(ctx context.Context, t *txn) error {
	if err := t.tx.Commit(ctx); err != nil {
		return err
	}

	for _, key := range t.removed {
		pb.keys.Delete(key)
	}
	for key, id := range t.added {
		pb.keys.Set(key, id)
	}
	return nil
}

// lookupUnsafe returns the ID of key, including keys added by t.
// MUST be called while holding at least a read lock.
func (pb *PostgresBackend) lookupUnsafe(t *txn, key string) (string, bool) {
	if t != nil {
		if id, ok := t.added[key]; ok {
			return id, true
		}
	}
	return pb.keys.Get(key)
}

func (pb *PostgresBackend) querier(t *txn) querier {
	if t != nil {
		return t.tx
	}
	return pb.pool
}

// statUnsafe resolves key; the empty key is the implicit root directory.
// MUST be called while holding at least a read lock.
func (pb *PostgresBackend) statUnsafe(ctx context.Context, t *txn, key string) (*data.FileStat, string, error) {
	if key == "" {
		return data.NewDirectoryStat("", pb.created), "", nil
	}

	id, exists := pb.lookupUnsafe(t, key)
	if !exists {
		return nil, "", data.NotFound(key)
	}

	row := pb.querier(t).QueryRow(ctx, "SELECT "+metadataColumns+" FROM "+pb.metadataTable+" WHERE id = $1", id)
	stat, err := scanStat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", data.NotFound(key)
	}
	if err != nil {
		return nil, "", err
	}
	return stat, id, nil
}

// insertUnsafe stores the metadata row of stat under id.
// MUST be called while holding a write lock.
func (pb *PostgresBackend) insertUnsafe(ctx context.Context, t *txn, id string, stat *data.FileStat) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO `+pb.metadataTable+` (id, key, parent, mode, size, modify_time, create_time, content_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
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
func (pb *PostgresBackend) mkdirAllUnsafe(ctx context.Context, t *txn, key string) error {
	tokens := data.TokenizePath(key)
	for i := range tokens {
		current := strings.Join(tokens[:i+1], data.Separator)

		stat, _, err := pb.statUnsafe(ctx, t, current)
		if err == nil {
			if !stat.IsDir() {
				return data.ErrNotDirectory
			}
			continue
		}
		if !errors.Is(err, data.ErrNotExist) {
			return err
		}

		if err := pb.insertUnsafe(ctx, t, data.NewID(), data.NewDirectoryStat(current, pb.now())); err != nil {
			return err
		}
	}
	return nil
}

// touchUnsafe bumps the modify time of a directory after its listing changed.
// MUST be called while holding a write lock.
func (pb *PostgresBackend) touchUnsafe(ctx context.Context, t *txn, dir string) error {
	if dir == "" {
		return nil
	}
	_, err := t.tx.Exec(ctx, "UPDATE "+pb.metadataTable+" SET modify_time = $1 WHERE key = $2", pb.now().UnixNano(), dir)
	return err
}

// descendantsUnsafe returns key and every key below it.
// MUST be called while holding at least a read lock.
func (pb *PostgresBackend) descendantsUnsafe(key string) []string {
	keys := []string{key}
	prefix := key + data.Separator
	pb.keys.Ascend(prefix, func(k, _ string) bool {
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
func (pb *PostgresBackend) now() time.Time {
	now := time.Now()
	if !now.After(pb.last) {
		now = pb.last.Add(time.Nanosecond)
	}
	pb.last = now
	return now
}

func scanStat(row pgx.Row) (*data.FileStat, error) {
	var stat data.FileStat
	var mode, modifyTime, createTime int64
	var contentType *string

	if err := row.Scan(&stat.Key, &mode, &stat.Size, &modifyTime, &createTime, &contentType); err != nil {
		return nil, err
	}

	stat.Mode = data.FileMode(mode)
	stat.ModifyTime = time.Unix(0, modifyTime)
	stat.CreateTime = time.Unix(0, createTime)
	if contentType != nil {
		stat.ContentType = data.ContentType(*contentType)
	}
	return &stat, nil
}

// escapeLike quotes the wildcards of a LIKE pattern for use with ESCAPE '\'.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
