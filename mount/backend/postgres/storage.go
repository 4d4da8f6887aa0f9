package postgres

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/mwantia/vfs/v2/data"
)

func (pb *PostgresBackend) Stat(ctx context.Context, key string) (*data.FileStat, error) {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	stat, _, err := pb.statUnsafe(ctx, nil, key)
	return stat, err
}

func (pb *PostgresBackend) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	stat, id, err := pb.statUnsafe(ctx, nil, key)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, data.ErrIsDirectory
	}

	var content []byte
	err = pb.pool.QueryRow(ctx, "SELECT content FROM "+pb.dataTable+" WHERE id = $1", id).Scan(&content)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(content)), nil
}

func (pb *PostgresBackend) ListObjects(ctx context.Context, key string) ([]*data.FileStat, error) {
	pb.mu.RLock()
	defer pb.mu.RUnlock()

	stat, _, err := pb.statUnsafe(ctx, nil, key)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, data.ErrNotDirectory
	}

	rows, err := pb.pool.Query(ctx, "SELECT "+metadataColumns+" FROM "+pb.metadataTable+" WHERE parent = $1 ORDER BY key", key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*data.FileStat
	for rows.Next() {
		child, err := scanStat(rows)
		if err != nil {
			return nil, err
		}
		stats = append(stats, child)
	}

	return stats, rows.Err()
}

func (pb *PostgresBackend) DeleteObject(ctx context.Context, key string, force bool) error {
	if key == "" {
		return data.ErrPermission
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()

	stat, _, err := pb.statUnsafe(ctx, nil, key)
	if err != nil {
		return err
	}

	descendants := pb.descendantsUnsafe(key)
	if stat.IsDir() && !force && len(descendants) > 1 {
		return data.ErrDirectoryNotEmpty
	}

	t, err := pb.beginUnsafe(ctx)
	if err != nil {
		return err
	}
	defer t.tx.Rollback(ctx)

	pattern := escapeLike(key+data.Separator) + "%"
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM `+pb.dataTable+` WHERE id IN (
			SELECT id FROM `+pb.metadataTable+` WHERE key = $1 OR key LIKE $2 ESCAPE '\'
		)`, key, pattern); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM `+pb.metadataTable+` WHERE key = $1 OR key LIKE $2 ESCAPE '\'`, key, pattern); err != nil {
		return err
	}
	if err := pb.touchUnsafe(ctx, t, data.ParentPath(key)); err != nil {
		return err
	}

	t.removed = descendants
	return pb.commitUnsafe(ctx, t)
}

func (pb *PostgresBackend) WriteObject(ctx context.Context, key string, r io.Reader) (*data.FileStat, error) {
	if key == "" {
		return nil, data.ErrIsDirectory
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > pb.GetCapabilities().MaxObjectSize {
		return nil, data.ErrInvalid
	}

	pb.mu.Lock()
	defer pb.mu.Unlock()

	t, err := pb.beginUnsafe(ctx)
	if err != nil {
		return nil, err
	}
	defer t.tx.Rollback(ctx)

	existing, id, err := pb.statUnsafe(ctx, t, key)
	switch {
	case err == nil && existing.IsDir():
		return nil, data.ErrIsDirectory
	case err != nil && !errors.Is(err, data.ErrNotExist):
		return nil, err
	}

	if err := pb.mkdirAllUnsafe(ctx, t, data.ParentPath(key)); err != nil {
		return nil, err
	}

	stat := data.NewFileStat(key, int64(len(content)), pb.now())
	if existing != nil {
		stat.CreateTime = existing.CreateTime
		if _, err := t.tx.Exec(ctx,
			"UPDATE "+pb.metadataTable+" SET size = $1, modify_time = $2, content_type = $3 WHERE id = $4",
			stat.Size, stat.ModifyTime.UnixNano(), string(stat.ContentType), id); err != nil {
			return nil, err
		}
	} else {
		id = data.NewID()
		if err := pb.insertUnsafe(ctx, t, id, stat); err != nil {
			return nil, err
		}
	}

	if _, err := t.tx.Exec(ctx, `
		INSERT INTO `+pb.dataTable+` (id, content) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content
	`, id, content); err != nil {
		return nil, err
	}
	if err := pb.touchUnsafe(ctx, t, data.ParentPath(key)); err != nil {
		return nil, err
	}

	if err := pb.commitUnsafe(ctx, t); err != nil {
		return nil, err
	}
	return stat, nil
}

func (pb *PostgresBackend) MkdirAll(ctx context.Context, key string) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	t, err := pb.beginUnsafe(ctx)
	if err != nil {
		return err
	}
	defer t.tx.Rollback(ctx)

	if err := pb.mkdirAllUnsafe(ctx, t, key); err != nil {
		return err
	}
	return pb.commitUnsafe(ctx, t)
}
