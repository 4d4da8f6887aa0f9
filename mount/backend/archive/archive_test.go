package archive

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/mwantia/vfs/v2/data"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("Create %s failed: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("Write %s failed: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return buf.Bytes()
}

func TestArchiveBackend_ImplicitDirectories(t *testing.T) {
	ctx := t.Context()
	raw := buildArchive(t, map[string]string{
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\n",
		"com/acme/App.class":   "cafebabe",
		"readme.txt":           "hello",
	})

	ab, err := NewArchiveBackend("app.jar", bytes.NewReader(raw), int64(len(raw)), time.Now(), nil)
	if err != nil {
		t.Fatalf("NewArchiveBackend failed: %v", err)
	}
	defer ab.Close(ctx)

	root, err := ab.ListObjects(ctx, "")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(root) != 3 {
		t.Fatalf("Expected 3 root entries, got %d", len(root))
	}

	stat, err := ab.Stat(ctx, "com/acme")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !stat.IsDir() {
		t.Errorf("Expected synthesized directory for %q", "com/acme")
	}

	rc, err := ab.OpenObject(ctx, "readme.txt")
	if err != nil {
		t.Fatalf("OpenObject failed: %v", err)
	}
	defer rc.Close()

	got, _ := io.ReadAll(rc)
	if string(got) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", got)
	}

	if _, err := ab.Stat(ctx, "missing"); !errors.Is(err, data.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
	if err := ab.DeleteObject(ctx, "readme.txt", false); !errors.Is(err, data.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
}

func TestArchiveBackend_RejectsEscapingEntries(t *testing.T) {
	raw := buildArchive(t, map[string]string{
		"../evil.txt": "boom",
	})

	if _, err := NewArchiveBackend("evil.zip", bytes.NewReader(raw), int64(len(raw)), time.Now(), nil); err == nil {
		t.Errorf("Expected archive with escaping entry to be rejected")
	}
}

func TestArchiveBackend_Extract(t *testing.T) {
	ctx := t.Context()
	raw := buildArchive(t, map[string]string{
		"a/b/c.txt": "nested",
		"top.txt":   "top",
	})

	path := filepath.Join(t.TempDir(), "test.zip")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ab, err := OpenArchiveFile(path)
	if err != nil {
		t.Fatalf("OpenArchiveFile failed: %v", err)
	}
	defer ab.Close(ctx)

	dest := t.TempDir()
	if err := ab.Extract(ctx, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "a", "b", "c.txt"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != "nested" {
		t.Errorf("Expected %q, got %q", "nested", got)
	}
}
