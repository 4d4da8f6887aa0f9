package handler

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend/ephemeral"
)

// failingListFS fails every listing of the directory named failing.
type failingListFS struct {
	*ephemeral.EphemeralBackend

	failing string
	err     error
}

func (fs *failingListFS) ListObjects(ctx context.Context, key string) ([]*data.FileStat, error) {
	if fs.err != nil && key == fs.failing {
		return nil, fs.err
	}
	return fs.EphemeralBackend.ListObjects(ctx, key)
}

// newExampleTree builds three folders with one, two and three children
// next to three loose files, listing failing with err when set.
func newExampleTree(t *testing.T, failing string, err error) vfs.Context {
	t.Helper()

	fs := &failingListFS{
		EphemeralBackend: ephemeral.NewEphemeralBackend(),
		failing:          failing,
		err:              err,
	}

	files := []string{
		"folder1/child1",
		"folder2/child1",
		"folder2/child2",
		"folder3/child1",
		"folder3/child2",
		"folder3/child3",
		"child1",
		"child2",
		"child3",
	}
	for _, file := range files {
		if _, err := fs.WriteObject(t.Context(), file, strings.NewReader(file)); err != nil {
			t.Fatalf("failed to write %s: %v", file, err)
		}
	}

	u, _ := url.Parse("vfsmemory://example")
	c, err := NewBackedContext(t.Context(), u, fs, vfs.KindMemory)
	if err != nil {
		t.Fatalf("NewBackedContext failed: %v", err)
	}
	t.Cleanup(func() {
		c.Close(context.Background())
	})
	return c
}

func TestVisit_DefaultsCoverExampleTree(t *testing.T) {
	c := newExampleTree(t, "", nil)

	tests := map[string]struct {
		attrs    vfs.VisitorAttributes
		expected int
	}{
		"default": {
			attrs:    vfs.DefaultAttributes,
			expected: 12,
		},
		"leaves only": {
			attrs:    vfs.LeavesOnlyAttributes,
			expected: 9,
		},
		"children": {
			attrs:    vfs.ChildrenAttributes,
			expected: 6,
		},
		"leaf children": {
			attrs:    vfs.LeafChildrenAttributes,
			expected: 3,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := countVisits(t, c, tt.attrs); got != tt.expected {
				t.Errorf("Expected %d visits, got %d", tt.expected, got)
			}
		})
	}
}

func TestVirtualFile_ChildrenFilteredStaysDirect(t *testing.T) {
	c := newExampleTree(t, "", nil)

	root, err := c.FS().Child(t.Context(), "")
	if err != nil {
		t.Fatalf("Child failed: %v", err)
	}
	defer root.Close()

	children, err := root.ChildrenFiltered(t.Context(), nil)
	if err != nil {
		t.Fatalf("ChildrenFiltered failed: %v", err)
	}
	defer vfs.CloseAll(children)

	if len(children) != 6 {
		t.Errorf("Expected 6 direct children, got %d", len(children))
	}
}

func TestVisit_IgnoreErrorsSkipsFailingSubtree(t *testing.T) {
	failure := errors.New("listing failed")
	c := newExampleTree(t, "folder2", failure)

	var visited []string
	visitor := vfs.VisitorFunc{
		Attrs: vfs.VisitorAttributes{IgnoreErrors: true},
		Fn: func(ctx context.Context, vf *vfs.VirtualFile) error {
			visited = append(visited, vf.PathName())
			return nil
		},
	}
	if err := c.FS().Visit(t.Context(), "", visitor); err != nil {
		t.Fatalf("Visit failed: %v", err)
	}

	// folder2 is reported but its two children are not.
	if len(visited) != 10 {
		t.Errorf("Expected 10 visits, got %d: %v", len(visited), visited)
	}
	for _, path := range visited {
		if strings.HasPrefix(path, "folder2/") {
			t.Errorf("Expected no visit below folder2, got %q", path)
		}
	}

	visitor.Attrs = vfs.DefaultAttributes
	err := c.FS().Visit(t.Context(), "", visitor)
	if !errors.Is(err, failure) || !errors.Is(err, data.ErrIOFailure) {
		t.Errorf("Expected wrapped listing failure without IgnoreErrors, got %v", err)
	}
}

func TestVisit_IgnoreErrorsKeepsFatalErrors(t *testing.T) {
	stop := errors.New("stop")

	t.Run("visitor error", func(t *testing.T) {
		c := newExampleTree(t, "", nil)

		visitor := vfs.VisitorFunc{
			Attrs: vfs.VisitorAttributes{IgnoreErrors: true},
			Fn: func(ctx context.Context, vf *vfs.VirtualFile) error {
				if vf.Name() == "child2" {
					return stop
				}
				return nil
			},
		}
		if err := c.FS().Visit(t.Context(), "", visitor); !errors.Is(err, stop) {
			t.Errorf("Expected visitor error, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		c := newExampleTree(t, "", nil)
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		visitor := vfs.VisitorFunc{
			Attrs: vfs.VisitorAttributes{IgnoreErrors: true},
			Fn: func(ctx context.Context, vf *vfs.VirtualFile) error {
				cancel()
				return nil
			},
		}
		if err := c.FS().Visit(ctx, "", visitor); !errors.Is(err, context.Canceled) {
			t.Errorf("Expected %v, got %v", context.Canceled, err)
		}
	})

	t.Run("deadline from backend", func(t *testing.T) {
		c := newExampleTree(t, "folder3", context.DeadlineExceeded)

		visitor := vfs.VisitorFunc{
			Attrs: vfs.VisitorAttributes{IgnoreErrors: true},
			Fn: func(ctx context.Context, vf *vfs.VirtualFile) error {
				return nil
			},
		}
		if err := c.FS().Visit(t.Context(), "", visitor); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected %v, got %v", context.DeadlineExceeded, err)
		}
	})
}
