package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Extract writes every entry of the archive below destDir.
// Keys are canonical, so no entry can land outside destDir.
func (ab *ArchiveBackend) Extract(ctx context.Context, destDir string) error {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	if ab.closed {
		return fmt.Errorf("extract %s: archive closed", ab.name)
	}

	var failure error
	ab.entries.Scan(func(key string, e *entry) bool {
		if err := ctx.Err(); err != nil {
			failure = err
			return false
		}

		target := filepath.Join(destDir, filepath.FromSlash(key))
		if e.file == nil {
			if err := os.MkdirAll(target, 0755); err != nil {
				failure = fmt.Errorf("mkdir %s: %w", key, err)
				return false
			}
			return true
		}

		if err := extractFile(e, target); err != nil {
			failure = fmt.Errorf("extract %s: %w", key, err)
			return false
		}
		return true
	})

	return failure
}

func extractFile(e *entry, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := e.file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(e.stat.Mode.Perm()))
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	// Keep entry times so staleness checks match the archived content
	return os.Chtimes(target, e.stat.ModifyTime, e.stat.ModifyTime)
}
