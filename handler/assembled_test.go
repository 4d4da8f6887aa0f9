package handler

import (
	"errors"
	"testing"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
)

func newAssembled(t *testing.T) (*AssembledContext, *AssembledHandler) {
	t.Helper()

	c, err := NewAssembledContext("assembly")
	if err != nil {
		t.Fatalf("NewAssembledContext failed: %v", err)
	}
	t.Cleanup(func() {
		c.Close(t.Context())
	})

	root, err := c.Directory(t.Context())
	if err != nil {
		t.Fatalf("Directory failed: %v", err)
	}
	return c, root
}

func TestAssembled_AddChildAndMkdir(t *testing.T) {
	_, source := newTree(t, "source")
	c, root := newAssembled(t)

	file, err := source.FS().Child(t.Context(), "folder2/child1")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}
	defer file.Close()

	lib, err := root.Mkdir("lib")
	if err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if _, err := lib.AddChildAs("renamed", file); err != nil {
		t.Fatalf("AddChildAs failed: %v", err)
	}
	if _, err := lib.AddChildAs("renamed", file); !errors.Is(err, data.ErrExist) {
		t.Errorf("Expected ErrExist for duplicate name, got %v", err)
	}
	if _, err := root.Mkdir("../escape"); !errors.Is(err, data.ErrInvalidPath) {
		t.Errorf("Expected ErrInvalidPath, got %v", err)
	}

	found, err := c.FS().Child(t.Context(), "lib/renamed")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}
	defer found.Close()

	content, err := found.ReadAll(t.Context())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != "folder2/child1" {
		t.Errorf("Expected 'folder2/child1', got %q", content)
	}

	uri, err := found.URI()
	if err != nil {
		t.Fatalf("URI failed: %v", err)
	}
	if uri.String() != "vfsassembled://assembly/lib/renamed" {
		t.Errorf("Expected 'vfsassembled://assembly/lib/renamed', got %q", uri.String())
	}
}

func TestAssembled_ChildrenSurviveVisits(t *testing.T) {
	c, root := newAssembled(t)

	if _, err := root.Mkdir("a"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	for range 3 {
		if got := countVisits(t, c, vfs.RecursiveAttributes); got != 1 {
			t.Fatalf("Expected 1 visit, got %d", got)
		}
	}
}

func TestAssembled_AddPath(t *testing.T) {
	_, source := newTree(t, "source")
	c, root := newAssembled(t)

	src, err := source.FS().Root(t.Context())
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}
	defer src.Close()

	skipChild2 := func(vf *vfs.VirtualFile) bool {
		return vf.Name() != "child2"
	}
	if err := root.AddPath(t.Context(), src, skipChild2); err != nil {
		t.Fatalf("AddPath failed: %v", err)
	}

	// 3 loose files minus child2, folder1..3 and empty with 1 + 1 + 2 files
	if got := countVisits(t, c, vfs.RecursiveAttributes); got != 10 {
		t.Errorf("Expected 10 entries, got %d", got)
	}

	if err := root.AddPath(t.Context(), src, nil); !errors.Is(err, data.ErrExist) {
		t.Errorf("Expected ErrExist when merging duplicates, got %v", err)
	}
}

func TestAssembled_RemoveChild(t *testing.T) {
	c, root := newAssembled(t)

	dir, err := root.Mkdir("gone")
	if err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	vf, err := c.FS().Child(t.Context(), "gone")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}

	deleted, err := vf.Delete(t.Context(), 0)
	if err != nil || !deleted {
		t.Fatalf("Expected delete, got %v (%v)", deleted, err)
	}
	vf.Close()

	if !dir.IsClosed() {
		t.Error("Expected removed directory to be closed after its last view")
	}
	if _, err := c.FS().Child(t.Context(), "gone"); !errors.Is(err, data.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}

	removed, err := root.RemoveChild("gone")
	if err != nil || removed {
		t.Errorf("Expected nothing to remove, got %v (%v)", removed, err)
	}
}
