// Package archive serves the entries of a zip-format archive (zip, jar, war, ear)
// as a read-only backend.FileSystem.
package archive

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend"
	"github.com/tidwall/btree"
)

type entry struct {
	stat *data.FileStat
	file *zip.File
}

// ArchiveBackend indexes every entry of a zip archive by its canonical key.
// Directories that only exist implicitly as entry prefixes are synthesized.
type ArchiveBackend struct {
	mu sync.RWMutex

	name    string
	reader  *zip.Reader
	closer  io.Closer
	modTime time.Time
	entries *btree.Map[string, *entry]
	closed  bool
}

// NewArchiveBackend reads the central directory of the archive in r.
// closer is invoked on Close and may be nil.
func NewArchiveBackend(name string, r io.ReaderAt, size int64, modTime time.Time, closer io.Closer) (*ArchiveBackend, error) {
	reader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, data.IOFailure(err, name)
	}

	ab := &ArchiveBackend{
		name:    name,
		reader:  reader,
		closer:  closer,
		modTime: modTime,
		entries: btree.NewMap[string, *entry](0),
	}

	if err := ab.index(); err != nil {
		return nil, err
	}

	return ab, nil
}

// OpenArchiveFile opens the archive at path on the local disk.
func OpenArchiveFile(path string) (*ArchiveBackend, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, data.IOFailure(err, path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, data.IOFailure(err, path)
	}

	ab, err := NewArchiveBackend(path, file, info.Size(), info.ModTime(), file)
	if err != nil {
		file.Close()
		return nil, err
	}

	return ab, nil
}

func (ab *ArchiveBackend) index() error {
	for _, f := range ab.reader.File {
		key, err := data.NormalizePath(f.Name)
		if err != nil {
			// Entries escaping the archive root are never served
			return data.IOFailure(err, ab.name)
		}
		if key == "" {
			continue
		}

		ab.addParents(key, f.Modified)
		if strings.HasSuffix(f.Name, data.Separator) || f.FileInfo().IsDir() {
			ab.entries.Set(key, &entry{stat: data.NewDirectoryStat(key, f.Modified)})
			continue
		}

		stat := data.NewFileStat(key, int64(f.UncompressedSize64), f.Modified)
		stat.Mode = data.FromFileMode(f.Mode()) &^ data.ModeDir
		if stat.Mode.Perm() == 0 {
			stat.Mode |= 0644
		}
		stat.ETag = crcTag(f.CRC32)
		ab.entries.Set(key, &entry{stat: stat, file: f})
	}

	return nil
}

func (ab *ArchiveBackend) addParents(key string, modTime time.Time) {
	for parent := data.ParentPath(key); parent != ""; parent = data.ParentPath(parent) {
		if _, exists := ab.entries.Get(parent); exists {
			return
		}
		ab.entries.Set(parent, &entry{stat: data.NewDirectoryStat(parent, modTime)})
	}
}

// Returns the identifier name defined for this backend
func (*ArchiveBackend) Name() string {
	return "archive"
}

func (ab *ArchiveBackend) Open(ctx context.Context) error {
	return nil
}

// Close releases the underlying archive file.
func (ab *ArchiveBackend) Close(ctx context.Context) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	if ab.closed {
		return nil
	}
	ab.closed = true
	ab.entries.Clear()

	if ab.closer != nil {
		return ab.closer.Close()
	}
	return nil
}

// GetCapabilities returns a list of capabilities supported by this backend.
func (ab *ArchiveBackend) GetCapabilities() *backend.BackendCapabilities {
	return &backend.BackendCapabilities{
		Capabilities: []backend.BackendCapability{
			backend.CapabilityRead,
			backend.CapabilityArchive,
		},
	}
}

func (ab *ArchiveBackend) IsReadOnly() bool {
	return true
}

// Len returns the number of indexed entries including synthesized directories.
func (ab *ArchiveBackend) Len() int {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	return ab.entries.Len()
}
