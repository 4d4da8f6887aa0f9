package data

import (
	"errors"
	"slices"
	"testing"
)

func TestTokenizePath(t *testing.T) {
	tests := map[string][]string{
		"":               nil,
		"/":              {},
		"a":              {"a"},
		"/a/b/c/":        {"a", "b", "c"},
		"a//b///c":       {"a", "b", "c"},
		"./a/../b":       {".", "a", "..", "b"},
		"...":            {"..."},
		"dir/file.txt":   {"dir", "file.txt"},
		"//leading/only": {"leading", "only"},
	}

	for path, expected := range tests {
		got := TokenizePath(path)
		if len(got) != len(expected) || !slices.Equal(got, expected) {
			t.Errorf("TokenizePath(%q): Expected %q, got %q", path, expected, got)
		}
	}
}

func TestApplySpecialPaths(t *testing.T) {
	tests := map[string]string{
		"a/./b":      "a/b",
		"a/../b":     "b",
		"a/b/../../": "",
		"./.":        "",
		"a/b/c/..":   "a/b",
		"a/.../b":    "a/.../b",
	}

	for path, expected := range tests {
		tokens, err := ApplySpecialPaths(TokenizePath(path))
		if err != nil {
			t.Fatalf("ApplySpecialPaths(%q) failed: %v", path, err)
		}
		if got := JoinPath(tokens...); got != expected {
			t.Errorf("ApplySpecialPaths(%q): Expected %q, got %q", path, expected, got)
		}
	}
}

func TestApplySpecialPaths_AboveRoot(t *testing.T) {
	for _, tokens := range [][]string{
		{"..", "a"},
		{"a", "..", ".."},
		{"..", "..", ".."},
		{".", "a", "..", "..", "b"},
	} {
		result, err := ApplySpecialPaths(tokens)
		if !errors.Is(err, ErrAboveRoot) {
			t.Errorf("Expected ErrAboveRoot for %q, got %v", tokens, err)
		}
		if result != nil {
			t.Errorf("Expected no result for %q, got %q", tokens, result)
		}
	}
}

func TestNormalizePath_Idempotent(t *testing.T) {
	for _, path := range []string{
		"",
		"a",
		"/a/b/",
		"a//./b/../c",
		"x/y/z/../../w/.",
		"folder1/child1",
	} {
		once, err := NormalizePath(path)
		if err != nil {
			t.Fatalf("NormalizePath(%q) failed: %v", path, err)
		}

		twice, err := NormalizePath(once)
		if err != nil {
			t.Fatalf("NormalizePath(%q) failed: %v", once, err)
		}

		if once != twice {
			t.Errorf("Expected %q to be stable, got %q", once, twice)
		}
		if HasSpecialTokens(once) {
			t.Errorf("Expected no special tokens in %q", once)
		}
	}
}

func TestPathHelpers(t *testing.T) {
	if got := ParentPath("a/b/c"); got != "a/b" {
		t.Errorf("Expected %q, got %q", "a/b", got)
	}
	if got := ParentPath("a"); got != "" {
		t.Errorf("Expected root parent, got %q", got)
	}
	if got := BaseName("a/b/c.txt"); got != "c.txt" {
		t.Errorf("Expected %q, got %q", "c.txt", got)
	}
	if got := JoinPath("", "a/", "/b", ""); got != "a/b" {
		t.Errorf("Expected %q, got %q", "a/b", got)
	}
	if got := RemainingPath([]string{"a", "b", "c"}, 1); got != "b/c" {
		t.Errorf("Expected %q, got %q", "b/c", got)
	}
	if !HasPrefix("a/b", "a") || HasPrefix("ab", "a") {
		t.Errorf("HasPrefix must respect segment boundaries")
	}
	if got := ToRelativePath("a/b/c", "a"); got != "b/c" {
		t.Errorf("Expected %q, got %q", "b/c", got)
	}
}

func TestContentType(t *testing.T) {
	for name, archive := range map[string]bool{
		"app.jar":          true,
		"APP.ZIP":          true,
		"web.war":          true,
		"notes.txt":        false,
		"ref.vfslink.yaml": false,
	} {
		if IsArchive(name) != archive {
			t.Errorf("IsArchive(%q): Expected %v", name, archive)
		}
	}
	if !IsLink("ref.vfslink.yaml") {
		t.Errorf("Expected link file to be detected")
	}
}
