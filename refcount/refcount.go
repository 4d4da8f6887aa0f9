// Package refcount wraps a closeable value with atomic reference counting.
//
// Every holder acquires its own Handle and closes it independently. The
// teardown of the wrapped value runs exactly once, after the last handle
// has been closed.
package refcount

import (
	"math"
	"sync/atomic"

	"github.com/mwantia/vfs/v2/data"
)

const (
	// MaxReferences is the highest number of concurrently open handles.
	MaxReferences = math.MaxInt32
	dead          = -1
)

// Resource counts the open handles of a single value.
type Resource[T any] struct {
	count    atomic.Int64
	value    T
	teardown func(T) error
}

// New wraps value; teardown may be nil.
func New[T any](value T, teardown func(T) error) *Resource[T] {
	return &Resource[T]{
		value:    value,
		teardown: teardown,
	}
}

// Acquire increments the reference count and returns a new handle.
// It fails with data.ErrClosed once the resource has been torn down and
// with data.ErrExhausted when MaxReferences handles are already open.
func (r *Resource[T]) Acquire() (*Handle[T], error) {
	for {
		current := r.count.Load()
		if current < 0 {
			return nil, data.ErrClosed
		}
		if current >= MaxReferences {
			return nil, data.ErrExhausted
		}
		if r.count.CompareAndSwap(current, current+1) {
			h := &Handle[T]{}
			h.res.Store(r)
			return h, nil
		}
	}
}

// Count returns the number of open handles, or -1 once torn down.
func (r *Resource[T]) Count() int64 {
	return r.count.Load()
}

func (r *Resource[T]) IsClosed() bool {
	return r.count.Load() < 0
}

// Value returns the wrapped value regardless of the reference state.
func (r *Resource[T]) Value() T {
	return r.value
}

// Kill tears the resource down immediately unless it is already dead.
// Handles that are still open become no-ops on close.
func (r *Resource[T]) Kill() error {
	for {
		current := r.count.Load()
		if current < 0 {
			return nil
		}
		if r.count.CompareAndSwap(current, dead) {
			return r.runTeardown()
		}
	}
}

func (r *Resource[T]) release() error {
	n := r.count.Add(-1)
	if n != 0 {
		if n < 0 {
			// Killed while this handle was still open; restore the sentinel.
			r.count.Store(dead)
		}
		return nil
	}
	// A concurrent Acquire may have revived the count between Add and CAS.
	if !r.count.CompareAndSwap(0, dead) {
		return nil
	}
	return r.runTeardown()
}

func (r *Resource[T]) runTeardown() error {
	if r.teardown == nil {
		return nil
	}
	return r.teardown(r.value)
}

// Handle is one holder's reference to a Resource.
type Handle[T any] struct {
	res atomic.Pointer[Resource[T]]
}

// Value returns the wrapped value, or ok=false once this handle was closed.
func (h *Handle[T]) Value() (value T, ok bool) {
	r := h.res.Load()
	if r == nil {
		return value, false
	}
	return r.value, true
}

func (h *Handle[T]) IsClosed() bool {
	return h.res.Load() == nil
}

// Close releases this handle's reference. Repeated calls are no-ops.
func (h *Handle[T]) Close() error {
	r := h.res.Swap(nil)
	if r == nil {
		return nil
	}
	return r.release()
}
