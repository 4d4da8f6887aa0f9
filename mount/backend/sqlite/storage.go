package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"

	"github.com/mwantia/vfs/v2/data"
)

func (sb *SQLiteBackend) Stat(ctx context.Context, key string) (*data.FileStat, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	stat, _, err := sb.statUnsafe(ctx, nil, key)
	return stat, err
}

func (sb *SQLiteBackend) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	stat, id, err := sb.statUnsafe(ctx, nil, key)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, data.ErrIsDirectory
	}

	var content []byte
	err = sb.db.QueryRowContext(ctx, "SELECT content FROM vfs_data WHERE id = ?", id).Scan(&content)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(content)), nil
}

func (sb *SQLiteBackend) ListObjects(ctx context.Context, key string) ([]*data.FileStat, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	stat, _, err := sb.statUnsafe(ctx, nil, key)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		return nil, data.ErrNotDirectory
	}

	rows, err := sb.db.QueryContext(ctx, "SELECT "+metadataColumns+" FROM vfs_metadata WHERE parent = ? ORDER BY key", key)
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

func (sb *SQLiteBackend) DeleteObject(ctx context.Context, key string, force bool) error {
	if key == "" {
		return data.ErrPermission
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	stat, _, err := sb.statUnsafe(ctx, nil, key)
	if err != nil {
		return err
	}

	descendants := sb.descendantsUnsafe(key)
	if stat.IsDir() && !force && len(descendants) > 1 {
		return data.ErrDirectoryNotEmpty
	}

	t, err := sb.beginUnsafe(ctx)
	if err != nil {
		return err
	}
	defer t.tx.Rollback()

	pattern := escapeLike(key+data.Separator) + "%"
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM vfs_data WHERE id IN (
			SELECT id FROM vfs_metadata WHERE key = ? OR key LIKE ? ESCAPE '\'
		)`, key, pattern); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM vfs_metadata WHERE key = ? OR key LIKE ? ESCAPE '\'`, key, pattern); err != nil {
		return err
	}
	if err := sb.touchUnsafe(ctx, t, data.ParentPath(key)); err != nil {
		return err
	}

	t.removed = descendants
	return sb.commitUnsafe(t)
}

func (sb *SQLiteBackend) WriteObject(ctx context.Context, key string, r io.Reader) (*data.FileStat, error) {
	if key == "" {
		return nil, data.ErrIsDirectory
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > sb.GetCapabilities().MaxObjectSize {
		return nil, data.ErrInvalid
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	t, err := sb.beginUnsafe(ctx)
	if err != nil {
		return nil, err
	}
	defer t.tx.Rollback()

	existing, id, err := sb.statUnsafe(ctx, t, key)
	switch {
	case err == nil && existing.IsDir():
		return nil, data.ErrIsDirectory
	case err != nil && !errors.Is(err, data.ErrNotExist):
		return nil, err
	}

	if err := sb.mkdirAllUnsafe(ctx, t, data.ParentPath(key)); err != nil {
		return nil, err
	}

	stat := data.NewFileStat(key, int64(len(content)), sb.now())
	if existing != nil {
		stat.CreateTime = existing.CreateTime
		if _, err := t.tx.ExecContext(ctx,
			"UPDATE vfs_metadata SET size = ?, modify_time = ?, content_type = ? WHERE id = ?",
			stat.Size, stat.ModifyTime.UnixNano(), string(stat.ContentType), id); err != nil {
			return nil, err
		}
	} else {
		id = data.NewID()
		if err := sb.insertUnsafe(ctx, t, id, stat); err != nil {
			return nil, err
		}
	}

	if _, err := t.tx.ExecContext(ctx, "INSERT OR REPLACE INTO vfs_data (id, content) VALUES (?, ?)", id, content); err != nil {
		return nil, err
	}
	if err := sb.touchUnsafe(ctx, t, data.ParentPath(key)); err != nil {
		return nil, err
	}

	if err := sb.commitUnsafe(t); err != nil {
		return nil, err
	}
	return stat, nil
}

func (sb *SQLiteBackend) MkdirAll(ctx context.Context, key string) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	t, err := sb.beginUnsafe(ctx)
	if err != nil {
		return err
	}
	defer t.tx.Rollback()

	if err := sb.mkdirAllUnsafe(ctx, t, key); err != nil {
		return err
	}
	return sb.commitUnsafe(t)
}
