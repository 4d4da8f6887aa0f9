package data

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Standard VFS errors that handlers, contexts and backends should use.
var (
	// Path resolution errors
	ErrInvalidPath    = errors.New("vfs: invalid path detected")
	ErrAboveRoot      = errors.New("vfs: path goes above root")
	ErrReverseOnTop   = errors.New("vfs: reverse path on top handler")
	ErrIsLeaf         = errors.New("vfs: leaf cannot have children")
	ErrRecursionLimit = errors.New("vfs: recursion limit reached")

	// Mount lifecycle errors
	ErrMountFailed   = errors.New("vfs: mount initialization failed")
	ErrUnmountFailed = errors.New("vfs: unmount cleanup failed")
	ErrNotMounted    = errors.New("vfs: path not mounted")

	// Backend errors
	ErrNotSupported = errors.New("vfs: operation not supported by backend")
	ErrIOFailure    = errors.New("vfs: i/o failure")

	// File operation errors
	ErrNotExist          = errors.New("vfs: file does not exist")
	ErrExist             = errors.New("vfs: file already exists")
	ErrIsDirectory       = errors.New("vfs: is a directory")
	ErrNotDirectory      = errors.New("vfs: not a directory")
	ErrPermission        = errors.New("vfs: permission denied")
	ErrReadOnly          = errors.New("vfs: read-only filesystem")
	ErrDirectoryNotEmpty = errors.New("vfs: directory not empty")

	// Lifecycle errors
	ErrClosed    = errors.New("vfs: already closed")
	ErrExhausted = errors.New("vfs: reference limit exhausted")
	ErrInvalid   = errors.New("vfs: invalid argument")
)

// NotFound reports that path does not resolve to anything.
func NotFound(path string) error {
	return fmt.Errorf("%w: '%s'", ErrNotExist, path)
}

// AboveRoot reports a '..' token that would ascend past the root of path.
func AboveRoot(path string) error {
	return fmt.Errorf("%w: '%s'", ErrAboveRoot, path)
}

func InvalidPath(path string) error {
	return fmt.Errorf("%w: '%s'", ErrInvalidPath, path)
}

// Closed reports an operation attempted on a closed handler or context.
func Closed(what string) error {
	return fmt.Errorf("%w: %s", ErrClosed, what)
}

func IsLeaf(path string) error {
	return fmt.Errorf("%w: '%s'", ErrIsLeaf, path)
}

func ReverseOnTop(path string) error {
	return fmt.Errorf("%w: '%s'", ErrReverseOnTop, path)
}

// RecursionLimit reports a visit that descended more than depth levels below path.
func RecursionLimit(path string, depth int) error {
	return fmt.Errorf("%w: '%s' exceeds depth %d", ErrRecursionLimit, path, depth)
}

// IOFailure wraps a backend failure with the path it happened on.
// Sentinel errors inside err stay reachable through errors.Is.
func IOFailure(err error, path string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w on '%s': %w", ErrIOFailure, path, err)
}

// Skippable reports whether err is a backend failure that a visit
// ignoring errors may step over. Cancellation and recursion limits never are.
func Skippable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrRecursionLimit) {
		return false
	}
	return errors.Is(err, ErrIOFailure) || errors.Is(err, ErrMountFailed) || errors.Is(err, ErrNotExist)
}

func MountFailed(err error, path string) error {
	if err == nil {
		return fmt.Errorf("%w: '%s'", ErrMountFailed, path)
	}
	return fmt.Errorf("%w: '%s': %w", ErrMountFailed, path, err)
}

func UnmountFailed(err error, path string) error {
	if err == nil {
		return fmt.Errorf("%w: '%s'", ErrUnmountFailed, path)
	}
	return fmt.Errorf("%w: '%s': %w", ErrUnmountFailed, path, err)
}

// Errors collects multiple failures from a single operation.
// It is safe for concurrent use.
type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.errors)
}

func (e *Errors) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = nil
}

// Errors returns all collected failures joined together, or nil.
func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}
