package refcount

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mwantia/vfs/v2/data"
)

func TestResource_IdempotentClose(t *testing.T) {
	var teardowns atomic.Int32
	res := New("archive", func(string) error {
		teardowns.Add(1)
		return nil
	})

	h, err := res.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Close(); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := teardowns.Load(); got != 1 {
		t.Errorf("Expected exactly one teardown, got %d", got)
	}
	if !res.IsClosed() {
		t.Errorf("Expected resource to be closed")
	}
	if _, ok := h.Value(); ok {
		t.Errorf("Expected closed handle to release its value")
	}
}

func TestResource_ReferenceConservation(t *testing.T) {
	const n = 64

	var teardowns atomic.Int32
	res := New(struct{}{}, func(struct{}) error {
		teardowns.Add(1)
		return nil
	})

	handles := make([]*Handle[struct{}], n)
	for i := range handles {
		h, err := res.Acquire()
		if err != nil {
			t.Fatalf("Acquire %d failed: %v", i, err)
		}
		handles[i] = h
	}

	if got := res.Count(); got != n {
		t.Fatalf("Expected %d references, got %d", n, got)
	}

	var wg sync.WaitGroup
	for _, h := range handles[1:] {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Close()
		}()
	}
	wg.Wait()

	if got := teardowns.Load(); got != 0 {
		t.Fatalf("Expected no teardown before the last close, got %d", got)
	}

	if err := handles[0].Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := teardowns.Load(); got != 1 {
		t.Errorf("Expected exactly one teardown, got %d", got)
	}
}

func TestResource_AcquireAfterTeardown(t *testing.T) {
	res := New(1, nil)

	h, err := res.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	h.Close()

	if _, err := res.Acquire(); !errors.Is(err, data.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestResource_Exhausted(t *testing.T) {
	res := New(1, nil)
	res.count.Store(MaxReferences)

	if _, err := res.Acquire(); !errors.Is(err, data.ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
}

func TestResource_TeardownError(t *testing.T) {
	failure := errors.New("release failed")
	res := New(1, func(int) error { return failure })

	h, _ := res.Acquire()
	if err := h.Close(); !errors.Is(err, failure) {
		t.Errorf("Expected teardown error, got %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("Expected second close to be a no-op, got %v", err)
	}
}

func TestResource_Kill(t *testing.T) {
	var teardowns atomic.Int32
	res := New(1, func(int) error {
		teardowns.Add(1)
		return nil
	})

	h, _ := res.Acquire()
	if err := res.Kill(); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	h.Close()
	res.Kill()

	if got := teardowns.Load(); got != 1 {
		t.Errorf("Expected exactly one teardown, got %d", got)
	}
	if res.Count() != dead {
		t.Errorf("Expected dead sentinel, got %d", res.Count())
	}
}
