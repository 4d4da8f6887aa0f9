package mount

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/handler"
	"github.com/zeebo/blake3"
)

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("Create %s failed: %v", name, err)
		}
		if _, err := f.Write(content); err != nil {
			t.Fatalf("Write %s failed: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return buf.Bytes()
}

// nestedZip returns an archive holding 'a.txt' and 'inner.zip', which in turn holds 'deep.txt'.
func nestedZip(t *testing.T) []byte {
	t.Helper()

	inner := buildZip(t, map[string][]byte{"deep.txt": []byte("deep")})
	return buildZip(t, map[string][]byte{
		"a.txt":     []byte("a"),
		"inner.zip": inner,
	})
}

func newRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()

	r, err := NewRegistry(append([]RegistryOption{WithTempDir(t.TempDir())}, opts...)...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Close(context.Background()); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return r
}

func newMemoryContext(t *testing.T, r *Registry, uri string, files map[string][]byte) (*handler.MemoryFactory, *handler.BackedContext) {
	t.Helper()

	factory := handler.NewMemoryFactory(vfs.WithMountTable(r))
	t.Cleanup(func() {
		factory.Close(context.Background())
	})

	// the first access decides the options of the context
	c, err := factory.Context(t.Context(), uri)
	if err != nil {
		t.Fatalf("Context failed: %v", err)
	}

	u, _ := url.Parse(uri)
	for name, content := range files {
		if err := factory.PutFile(t.Context(), "vfsmemory://"+u.Host+"/"+name, content); err != nil {
			t.Fatalf("PutFile failed: %v", err)
		}
	}
	return factory, c
}

func child(t *testing.T, c vfs.Context, path string) *vfs.VirtualFile {
	t.Helper()

	vf, err := c.FS().Child(t.Context(), path)
	if err != nil {
		t.Fatalf("Child '%s' failed: %v", path, err)
	}
	t.Cleanup(func() {
		vf.Close()
	})
	return vf
}

func TestRegistry_OwnerLifecycle(t *testing.T) {
	r := newRegistry(t)
	_, c := newMemoryContext(t, r, "vfsmemory://host", map[string][]byte{"outer.zip": nestedZip(t)})

	outer := child(t, c, "outer.zip")
	ownerA, ownerB, ownerC := ObjectOwner("A"), ObjectOwner("B"), ObjectOwner("C")

	rootA, err := r.Mount(t.Context(), ownerA, outer.Handler(), vfs.MountZip)
	if err != nil {
		t.Fatalf("Mount A failed: %v", err)
	}
	rootB, err := r.Mount(t.Context(), ownerB, outer.Handler(), vfs.MountZip)
	if err != nil {
		t.Fatalf("Mount B failed: %v", err)
	}
	if rootA != rootB {
		t.Error("Expected mounting a mounted target to return the same root")
	}
	if rootA.Kind() != vfs.KindArchive {
		t.Errorf("Expected archive root, got %s", rootA.Kind())
	}
	if got := r.Owners(outer.Handler()); got != 2 {
		t.Errorf("Expected 2 owners, got %d", got)
	}

	inner, err := rootA.FindChild(t.Context(), "inner.zip")
	if err != nil {
		t.Fatalf("FindChild failed: %v", err)
	}
	if _, err := r.Mount(t.Context(), ownerC, inner, vfs.MountZip); err != nil {
		t.Fatalf("Mount nested failed: %v", err)
	}
	if !r.IsMounted(inner) {
		t.Fatal("Expected nested archive to be mounted")
	}

	// mounted archives are transparent to path resolution
	deep := child(t, c, "outer.zip/inner.zip/deep.txt")
	content, err := deep.ReadAll(t.Context())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != "deep" {
		t.Errorf("Expected 'deep', got %q", content)
	}
	if deep.PathName() != "outer.zip/inner.zip/deep.txt" {
		t.Errorf("Expected 'outer.zip/inner.zip/deep.txt', got %q", deep.PathName())
	}

	if err := r.Cleanup(t.Context(), ownerA); err != nil {
		t.Fatalf("Cleanup A failed: %v", err)
	}
	if !r.IsMounted(outer.Handler()) {
		t.Error("Expected mount to survive while B holds it")
	}
	if got := len(r.Mounts()); got != 2 {
		t.Errorf("Expected 2 mounts, got %d", got)
	}

	if err := r.Cleanup(t.Context(), ownerB); err != nil {
		t.Fatalf("Cleanup B failed: %v", err)
	}
	if r.IsMounted(outer.Handler()) {
		t.Error("Expected unmount after the last owner")
	}
	if got := len(r.Mounts()); got != 0 {
		t.Errorf("Expected nested mount to be torn down, got %d mounts", got)
	}
	if _, err := deep.ReadAll(t.Context()); !errors.Is(err, data.ErrClosed) {
		t.Errorf("Expected content of the unmounted archive to be gone, got %v", err)
	}

	raw := child(t, c, "outer.zip")
	if raw.Handler().Kind() != vfs.KindMemory {
		t.Errorf("Expected the plain archive file after unmount, got %s", raw.Handler().Kind())
	}

	// C lost its mount together with the outer archive
	if err := r.Cleanup(t.Context(), ownerC); err != nil {
		t.Errorf("Expected no-op cleanup, got %v", err)
	}
	if err := r.Cleanup(t.Context(), ObjectOwner("never")); err != nil {
		t.Errorf("Expected no-op cleanup, got %v", err)
	}
}

func TestRegistry_OwnersAreInterchangeable(t *testing.T) {
	r := newRegistry(t)
	_, c := newMemoryContext(t, r, "vfsmemory://host", map[string][]byte{"outer.zip": nestedZip(t)})

	outer := child(t, c, "outer.zip")
	view, err := outer.Clone()
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	defer view.Close()

	if _, err := r.Mount(t.Context(), VirtualFileOwner(outer), outer.Handler(), vfs.MountZip); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if _, err := r.Mount(t.Context(), VirtualFileOwner(view), outer.Handler(), vfs.MountZip); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if got := r.Owners(outer.Handler()); got != 1 {
		t.Errorf("Expected views of one file to share an owner, got %d", got)
	}

	if err := r.Cleanup(t.Context(), VirtualFileOwner(view)); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if r.IsMounted(outer.Handler()) {
		t.Error("Expected unmount after cleanup through another view")
	}
}

func TestRegistry_MountFailureReverts(t *testing.T) {
	r := newRegistry(t)
	factory, c := newMemoryContext(t, r, "vfsmemory://host", map[string][]byte{"broken.zip": []byte("not an archive")})

	broken := child(t, c, "broken.zip")
	owner := ObjectOwner("A")

	_, err := r.Mount(t.Context(), owner, broken.Handler(), vfs.MountZip)
	if !errors.Is(err, data.ErrMountFailed) {
		t.Fatalf("Expected ErrMountFailed, got %v", err)
	}
	if r.IsMounted(broken.Handler()) {
		t.Error("Expected failed mount to leave the target unmounted")
	}
	if got := r.Owners(broken.Handler()); got != 0 {
		t.Errorf("Expected no owners, got %d", got)
	}
	if _, ok := r.Backup(broken.Handler()); ok {
		t.Error("Expected no backup of a failed mount")
	}

	entries, err := os.ReadDir(r.TempDir())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "backups" {
		t.Errorf("Expected only the backup directory to remain, got %v", entries)
	}

	if err := factory.PutFile(t.Context(), "vfsmemory://host/broken.zip", nestedZip(t)); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}
	if _, err := r.Mount(t.Context(), owner, broken.Handler(), vfs.MountZip); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
}

func TestRegistry_MountDirectoryIsNotMounted(t *testing.T) {
	r := newRegistry(t)
	_, c := newMemoryContext(t, r, "vfsmemory://host", map[string][]byte{"dir/file.txt": []byte("x")})

	dir := child(t, c, "dir")
	result, err := r.Mount(t.Context(), ObjectOwner("A"), dir.Handler(), vfs.MountZip)
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if !vfs.Equal(result, dir.Handler()) {
		t.Error("Expected a directory target to be returned as is")
	}
	if r.IsMounted(dir.Handler()) {
		t.Error("Expected a directory not to be mounted")
	}
}

func TestRegistry_Backup(t *testing.T) {
	tests := map[string]Compression{
		"none": CompressionNone,
		"lz4":  CompressionLZ4,
		"zstd": CompressionZstd,
	}

	for name, compression := range tests {
		t.Run(name, func(t *testing.T) {
			raw := nestedZip(t)
			r := newRegistry(t, WithBackupCompression(compression))
			factory, c := newMemoryContext(t, r, "vfsmemory://host", map[string][]byte{"outer.zip": raw})

			outer := child(t, c, "outer.zip")
			owner := ObjectOwner("A")
			if _, err := r.Mount(t.Context(), owner, outer.Handler(), vfs.MountCopy); err != nil {
				t.Fatalf("Mount failed: %v", err)
			}

			info, ok := r.Backup(outer.Handler())
			if !ok {
				t.Fatal("Expected a backup after the first mount")
			}
			digest := blake3.Sum256(raw)
			if info.Digest != hex.EncodeToString(digest[:]) {
				t.Errorf("Expected digest %x, got %s", digest, info.Digest)
			}
			if info.Size != int64(len(raw)) {
				t.Errorf("Expected size %d, got %d", len(raw), info.Size)
			}
			if info.Compression != compression {
				t.Errorf("Expected %s, got %s", compression, info.Compression)
			}

			rc, err := r.OpenBackup(outer.Handler())
			if err != nil {
				t.Fatalf("OpenBackup failed: %v", err)
			}
			restored, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if !bytes.Equal(restored, raw) {
				t.Error("Expected backup to restore the original content")
			}

			// the first backup survives unmounting and later changes
			if err := r.Cleanup(t.Context(), owner); err != nil {
				t.Fatalf("Cleanup failed: %v", err)
			}
			if err := factory.PutFile(t.Context(), "vfsmemory://host/outer.zip", buildZip(t, nil)); err != nil {
				t.Fatalf("PutFile failed: %v", err)
			}
			if _, err := r.Mount(t.Context(), owner, outer.Handler(), vfs.MountCopy); err != nil {
				t.Fatalf("Mount failed: %v", err)
			}
			if again, _ := r.Backup(outer.Handler()); again.Digest != info.Digest {
				t.Errorf("Expected first backup to be kept, got %s", again.Digest)
			}
		})
	}
}

func TestRegistry_BackupPolicies(t *testing.T) {
	r := newRegistry(t, WithBackupPolicy(BackupEveryMount))
	factory, c := newMemoryContext(t, r, "vfsmemory://host", map[string][]byte{"outer.zip": nestedZip(t)})

	outer := child(t, c, "outer.zip")
	owner := ObjectOwner("A")
	if _, err := r.Mount(t.Context(), owner, outer.Handler(), vfs.MountZip); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	first, _ := r.Backup(outer.Handler())

	if err := r.Cleanup(t.Context(), owner); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if err := factory.PutFile(t.Context(), "vfsmemory://host/outer.zip", buildZip(t, nil)); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}
	if _, err := r.Mount(t.Context(), owner, outer.Handler(), vfs.MountZip); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	second, _ := r.Backup(outer.Handler())
	if second.Digest == first.Digest {
		t.Error("Expected a fresh backup on every mount")
	}
	if _, err := os.Stat(first.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected replaced backup to be removed, got %v", err)
	}

	never := newRegistry(t, WithBackupPolicy(BackupNever))
	_, nc := newMemoryContext(t, never, "vfsmemory://other", map[string][]byte{"outer.zip": nestedZip(t)})
	target := child(t, nc, "outer.zip")
	if _, err := never.Mount(t.Context(), owner, target.Handler(), vfs.MountZip); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	if _, ok := never.Backup(target.Handler()); ok {
		t.Error("Expected no backup with BackupNever")
	}
}

func TestRegistry_Automount(t *testing.T) {
	r := newRegistry(t)
	_, c := newMemoryContext(t, r, "vfsmemory://auto?automount=true", map[string][]byte{"outer.zip": nestedZip(t)})

	outer := child(t, c, "outer.zip")
	if outer.Handler().Kind() != vfs.KindArchive {
		t.Fatalf("Expected archive to be mounted on access, got %s", outer.Handler().Kind())
	}

	count := 0
	visitor := vfs.VisitorFunc{
		Attrs: vfs.RecursiveAttributes,
		Fn: func(ctx context.Context, vf *vfs.VirtualFile) error {
			count++
			return nil
		},
	}
	if err := c.FS().Visit(t.Context(), "", visitor); err != nil {
		t.Fatalf("Visit failed: %v", err)
	}
	// outer.zip, a.txt, inner.zip, deep.txt
	if count != 4 {
		t.Errorf("Expected 4 entries through nested automounts, got %d", count)
	}
	if got := len(r.Mounts()); got != 2 {
		t.Errorf("Expected 2 mounts, got %d", got)
	}

	outer.Close()
	if err := c.Close(t.Context()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := len(r.Mounts()); got != 0 {
		t.Errorf("Expected closing the context to release its mounts, got %d", got)
	}
}

func TestRegistry_MountTypes(t *testing.T) {
	tests := map[string]struct {
		mountType vfs.MountType
		temp      []string
	}{
		"zip":      {mountType: vfs.MountZip, temp: nil},
		"copy":     {mountType: vfs.MountCopy, temp: []string{"outer.zip"}},
		"expanded": {mountType: vfs.MountExpanded, temp: []string{"expanded"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "outer.zip"), nestedZip(t), 0644); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}

			r := newRegistry(t, WithBackupPolicy(BackupNever))
			fc, err := handler.NewFileFactory().NewContext(t.Context(), &url.URL{Scheme: handler.FileScheme, Path: dir}, vfs.WithMountTable(r))
			if err != nil {
				t.Fatalf("NewContext failed: %v", err)
			}
			defer fc.Close(context.Background())

			outer := child(t, fc, "outer.zip")
			root, err := r.Mount(t.Context(), ObjectOwner(name), outer.Handler(), tt.mountType)
			if err != nil {
				t.Fatalf("Mount failed: %v", err)
			}

			mounts := r.Mounts()
			if len(mounts) != 1 {
				t.Fatalf("Expected 1 mount, got %d", len(mounts))
			}
			entries, err := os.ReadDir(mounts[0].TempDir())
			if err != nil {
				t.Fatalf("ReadDir failed: %v", err)
			}
			if len(entries) != len(tt.temp) {
				t.Fatalf("Expected %d temp entries, got %d", len(tt.temp), len(entries))
			}
			for i, entry := range entries {
				if entry.Name() != tt.temp[i] {
					t.Errorf("Expected %q, got %q", tt.temp[i], entry.Name())
				}
			}

			a, err := root.FindChild(t.Context(), "a.txt")
			if err != nil {
				t.Fatalf("FindChild failed: %v", err)
			}
			vf, err := a.VirtualFile()
			if err != nil {
				t.Fatalf("VirtualFile failed: %v", err)
			}
			content, err := vf.ReadAll(t.Context())
			vf.Close()
			if err != nil || string(content) != "a" {
				t.Errorf("Expected 'a', got %q (%v)", content, err)
			}

			tempDir := mounts[0].TempDir()
			if err := r.Cleanup(t.Context(), ObjectOwner(name)); err != nil {
				t.Fatalf("Cleanup failed: %v", err)
			}
			if _, err := os.Stat(tempDir); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("Expected temp directory to be removed, got %v", err)
			}
		})
	}
}

func TestRegistry_Close(t *testing.T) {
	r, err := NewRegistry(WithTempDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	_, c := newMemoryContext(t, r, "vfsmemory://host", map[string][]byte{"outer.zip": nestedZip(t)})

	outer := child(t, c, "outer.zip")
	if _, err := r.Mount(t.Context(), ObjectOwner("A"), outer.Handler(), vfs.MountZip); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	if err := r.Close(t.Context()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(r.TempDir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected temp directory to be removed, got %v", err)
	}
	if _, err := r.Mount(t.Context(), ObjectOwner("A"), outer.Handler(), vfs.MountZip); !errors.Is(err, data.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
