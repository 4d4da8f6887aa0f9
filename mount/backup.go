package mount

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/zeebo/blake3"
)

// BackupInfo describes the copy of a target taken when it was mounted.
// Size and Digest refer to the original, uncompressed content.
type BackupInfo struct {
	Path        string
	Size        int64
	Digest      string
	Compression Compression
	Created     time.Time
}

// Backup returns the backup of target, if one was taken.
func (r *Registry) Backup(target vfs.Handler) (BackupInfo, bool) {
	e := r.find(target)
	if e == nil {
		return BackupInfo{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.backup == nil {
		return BackupInfo{}, false
	}
	return *e.backup, true
}

// OpenBackup returns the original content of target as it was backed up.
func (r *Registry) OpenBackup(target vfs.Handler) (io.ReadCloser, error) {
	info, ok := r.Backup(target)
	if !ok {
		return nil, data.NotFound("backup of " + target.PathName())
	}

	f, err := os.Open(info.Path)
	if err != nil {
		return nil, data.IOFailure(err, info.Path)
	}

	rc, err := decompressReader(f, info.Compression)
	if err != nil {
		f.Close()
		return nil, err
	}
	return rc, nil
}

// prepareBackup copies target when the policy asks for it. The result is
// only attached to e by commitBackup once the mount succeeded.
func (r *Registry) prepareBackup(ctx context.Context, e *entry, target vfs.Handler) (*BackupInfo, error) {
	switch r.options.BackupPolicy {
	case BackupNever:
		return nil, nil
	case BackupFirstMount:
		if e.backup != nil {
			return nil, nil
		}
	}

	info, err := r.writeBackup(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to back up '%s': %w", target.PathName(), err)
	}
	return info, nil
}

func (r *Registry) commitBackup(e *entry, info *BackupInfo) {
	if info == nil {
		return
	}

	if previous := e.backup; previous != nil {
		r.removeBackup(previous)
	}
	e.backup = info

	r.log.Debug("Mount: backed up %s (%d bytes, blake3 %s)", e.path, info.Size, info.Digest)
}

func (r *Registry) removeBackup(info *BackupInfo) {
	if info == nil {
		return
	}
	if err := os.Remove(info.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.Warn("Mount: failed to remove backup %s: %v", info.Path, err)
	}
}

func (r *Registry) writeBackup(ctx context.Context, target vfs.Handler) (*BackupInfo, error) {
	src, err := target.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	compression := r.options.BackupCompression
	path := filepath.Join(r.backupDir, data.NewID()+".bak"+compression.Extension())

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	hasher := blake3.New()
	size, err := writeCompressed(f, io.TeeReader(src, hasher), compression)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	return &BackupInfo{
		Path:        path,
		Size:        size,
		Digest:      hex.EncodeToString(hasher.Sum(nil)),
		Compression: compression,
		Created:     time.Now(),
	}, nil
}

func writeCompressed(w io.Writer, r io.Reader, compression Compression) (int64, error) {
	cw, err := compressWriter(w, compression)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(cw, r)
	if closeErr := cw.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
