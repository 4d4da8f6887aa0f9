package handler

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"testing"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend"
	"github.com/mwantia/vfs/v2/mount/backend/sqlite"
)

func TestSegmentRoot(t *testing.T) {
	tests := map[string]struct {
		uri      string
		segments int
		expected string
	}{
		"host only":      {uri: "vfssqlite://tree/dir/file.txt?path=/tmp/x.db", segments: 0, expected: "vfssqlite://tree?path=%2Ftmp%2Fx.db"},
		"database":       {uri: "vfspg://user:secret@db:5432/vfs/dir/file.txt?sslmode=disable", segments: 1, expected: "vfspg://db:5432/vfs?sslmode=disable"},
		"secrets":        {uri: "consul://127.0.0.1:8500/a?token=abc&prefix=x", segments: 0, expected: "consul://127.0.0.1:8500?prefix=x"},
		"bucket exactly": {uri: "s3://key:secret@minio:9000/bucket", segments: 1, expected: "s3://minio:9000/bucket"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			u, err := url.Parse(tt.uri)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			root, err := segmentRoot(tt.segments)(u)
			if err != nil {
				t.Fatalf("segmentRoot failed: %v", err)
			}
			if root.String() != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, root.String())
			}
		})
	}

	u, _ := url.Parse("s3://minio:9000")
	if _, err := segmentRoot(1)(u); err == nil {
		t.Error("Expected an error for a missing bucket")
	}
}

func TestPostgresConnString(t *testing.T) {
	defaults := PostgresDefaults{User: "vfs", Password: "default", SSLMode: "prefer"}

	tests := map[string]struct {
		uri      string
		expected string
	}{
		"defaults":  {uri: "vfspg://db:5432/files/dir", expected: "postgres://vfs:default@db:5432/files?sslmode=prefer"},
		"user info": {uri: "vfspg://admin:pw@db/files?sslmode=disable", expected: "postgres://admin:pw@db/files?sslmode=disable"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			u, _ := url.Parse(tt.uri)
			conn, err := postgresConnString(u, defaults)
			if err != nil {
				t.Fatalf("postgresConnString failed: %v", err)
			}
			if conn != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, conn)
			}
		})
	}

	u, _ := url.Parse("vfspg://db:5432")
	if _, err := postgresConnString(u, defaults); err == nil {
		t.Error("Expected an error for a missing database")
	}
}

func TestSQLiteFactory(t *testing.T) {
	factory := NewSQLiteFactory()
	path := filepath.Join(t.TempDir(), "tree.db")

	u, _ := url.Parse("vfssqlite://tree/docs/readme.txt?path=" + url.QueryEscape(path))
	c, err := factory.NewContext(t.Context(), u)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	defer c.Close(context.Background())

	if c.Key() != "vfssqlite://tree" {
		t.Errorf("Expected 'vfssqlite://tree', got %q", c.Key())
	}

	bc := c.(*BackedContext)
	if _, ok := bc.FileSystem().(*sqlite.SQLiteBackend); !ok {
		t.Fatalf("Expected a sqlite backend, got %T", bc.FileSystem())
	}

	fs := bc.FileSystem().(backend.WritableFileSystem)
	if _, err := fs.WriteObject(t.Context(), "docs/readme.txt", bytes.NewReader([]byte("stored"))); err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}

	file, err := c.FS().Child(t.Context(), "docs/readme.txt")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}
	defer file.Close()

	content, err := file.ReadAll(t.Context())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != "stored" {
		t.Errorf("Expected 'stored', got %q", content)
	}
	if file.Handler().Kind() != vfs.KindFile {
		t.Errorf("Expected kind %s, got %s", vfs.KindFile, file.Handler().Kind())
	}
}

func TestSQLiteFactory_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.db")

	seed, err := sqlite.NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	if err := seed.Open(t.Context()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := seed.WriteObject(t.Context(), "file.txt", bytes.NewReader([]byte("kept"))); err != nil {
		t.Fatalf("WriteObject failed: %v", err)
	}
	if err := seed.Close(t.Context()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	u, _ := url.Parse("vfssqlite://tree?readonly=true&path=" + url.QueryEscape(path))
	c, err := NewSQLiteFactory().NewContext(t.Context(), u)
	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}
	defer c.Close(context.Background())

	if !c.(*BackedContext).FileSystem().IsReadOnly() {
		t.Error("Expected a read-only backend")
	}

	file, err := c.FS().Child(t.Context(), "file.txt")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}
	defer file.Close()

	if _, err := file.Delete(t.Context(), 0); !errors.Is(err, data.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
	if content, _ := file.ReadAll(t.Context()); string(content) != "kept" {
		t.Errorf("Expected 'kept', got %q", content)
	}
}
