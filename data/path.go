package data

import (
	"strings"
)

const (
	// CurrentToken refers to the current path segment.
	CurrentToken = "."
	// ReverseToken refers to the parent path segment.
	ReverseToken = ".."
	// Separator delimits path segments.
	Separator = "/"
)

func IsCurrentToken(token string) bool {
	return token == CurrentToken
}

func IsReverseToken(token string) bool {
	return token == ReverseToken
}

// IsSpecialToken reports whether token is either '.' or '..'.
func IsSpecialToken(token string) bool {
	return IsCurrentToken(token) || IsReverseToken(token)
}

// TokenizePath splits path into its segments.
// Repeated separators collapse and leading or trailing separators are ignored.
// Special tokens are kept as-is; use ApplySpecialPaths to resolve them.
func TokenizePath(path string) []string {
	if path == "" {
		return nil
	}

	tokens := make([]string, 0, strings.Count(path, Separator)+1)
	start := -1
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if start >= 0 {
				tokens = append(tokens, path[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, path[start:])
	}

	return tokens
}

// ApplySpecialPaths resolves '.' and '..' tokens against a segment stack.
// A '..' without a preceding real segment fails with ErrAboveRoot.
func ApplySpecialPaths(tokens []string) ([]string, error) {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		switch {
		case IsCurrentToken(token):
			continue
		case IsReverseToken(token):
			if len(result) == 0 {
				return nil, AboveRoot(strings.Join(tokens, Separator))
			}
			result = result[:len(result)-1]
		default:
			result = append(result, token)
		}
	}

	return result, nil
}

// NormalizePath returns the canonical relative form of path.
// NormalizePath(NormalizePath(p)) == NormalizePath(p) for every valid p.
func NormalizePath(path string) (string, error) {
	tokens, err := ApplySpecialPaths(TokenizePath(path))
	if err != nil {
		return "", err
	}

	return strings.Join(tokens, Separator), nil
}

// HasSpecialTokens reports whether any segment of path is '.' or '..'.
func HasSpecialTokens(path string) bool {
	for _, token := range TokenizePath(path) {
		if IsSpecialToken(token) {
			return true
		}
	}
	return false
}

// RemainingPath joins tokens starting at index i.
func RemainingPath(tokens []string, i int) string {
	if i >= len(tokens) {
		return ""
	}
	return strings.Join(tokens[i:], Separator)
}

// JoinPath joins canonical relative paths, skipping empty elements.
func JoinPath(elems ...string) string {
	parts := make([]string, 0, len(elems))
	for _, elem := range elems {
		elem = strings.Trim(elem, Separator)
		if elem != "" {
			parts = append(parts, elem)
		}
	}
	return strings.Join(parts, Separator)
}

// ParentPath returns the canonical parent of a canonical path.
// The parent of a top-level segment is the empty root path.
func ParentPath(path string) string {
	path = strings.Trim(path, Separator)
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[:i]
	}
	return ""
}

// BaseName returns the last segment of a canonical path.
func BaseName(path string) string {
	path = strings.Trim(path, Separator)
	if i := strings.LastIndex(path, Separator); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ToRelativePath removes the prefix from path.
// Returns the relative path after the prefix.
// It additionally removes any leading slashes.
func ToRelativePath(path, prefix string) string {
	if prefix == "" {
		return strings.TrimPrefix(path, Separator)
	}

	if path == prefix {
		return ""
	}

	relPath := strings.TrimPrefix(path, prefix)
	return strings.TrimPrefix(relPath, Separator)
}

// HasPrefix checks if path is prefix or lies below it.
// Both paths should be cleaned before calling.
func HasPrefix(path, prefix string) bool {
	// Root matches everything
	if prefix == "" {
		return true
	}

	// Exact match
	if path == prefix {
		return true
	}

	return strings.HasPrefix(path, strings.TrimSuffix(prefix, Separator)+Separator)
}
