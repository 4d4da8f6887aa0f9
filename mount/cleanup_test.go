package mount

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
)

// hookedProvider runs onClose with the archive name before a mount closes.
type hookedProvider struct {
	ArchiveProvider

	onClose func(name string) error
}

func (p *hookedProvider) MountArchive(ctx context.Context, target vfs.Handler, tempDir string, mountType vfs.MountType) (io.Closer, vfs.Handler, error) {
	closer, root, err := p.ArchiveProvider.MountArchive(ctx, target, tempDir, mountType)
	if err != nil {
		return nil, nil, err
	}
	return &hookedCloser{Closer: closer, name: target.Name(), onClose: p.onClose}, root, nil
}

type hookedCloser struct {
	io.Closer

	name    string
	onClose func(name string) error
}

func (c *hookedCloser) Close() error {
	errs := &data.Errors{}
	errs.Add(c.onClose(c.name))
	errs.Add(c.Closer.Close())
	return errs.Errors()
}

func newHookedRegistry(t *testing.T, onClose func(name string) error) *Registry {
	t.Helper()

	p := &hookedProvider{onClose: onClose}
	r := newRegistry(t, WithArchiveProvider(p))
	p.ArchiveProvider = NewZipProvider(nil, r)
	return r
}

func TestRegistry_MountWaitsForTeardown(t *testing.T) {
	var once sync.Once
	closing := make(chan struct{})

	r := newHookedRegistry(t, func(name string) error {
		if name == "inner.zip" {
			once.Do(func() {
				close(closing)
			})
			time.Sleep(100 * time.Millisecond)
		}
		return nil
	})
	_, c := newMemoryContext(t, r, "vfsmemory://host", map[string][]byte{"outer.zip": nestedZip(t)})

	outer := child(t, c, "outer.zip")
	ownerA, ownerB, ownerC := ObjectOwner("A"), ObjectOwner("B"), ObjectOwner("C")

	rootA, err := r.Mount(t.Context(), ownerA, outer.Handler(), vfs.MountZip)
	if err != nil {
		t.Fatalf("Mount A failed: %v", err)
	}
	inner, err := rootA.FindChild(t.Context(), "inner.zip")
	if err != nil {
		t.Fatalf("FindChild failed: %v", err)
	}
	if _, err := r.Mount(t.Context(), ownerC, inner, vfs.MountZip); err != nil {
		t.Fatalf("Mount nested failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Cleanup(context.Background(), ownerA)
	}()

	// the teardown of outer.zip is now closing the nested mount
	<-closing
	rootB, err := r.Mount(t.Context(), ownerB, outer.Handler(), vfs.MountZip)
	if err != nil {
		t.Fatalf("Mount B failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Cleanup A failed: %v", err)
	}

	if rootB == rootA {
		t.Error("Expected a fresh mount instead of the torn down one")
	}
	if !r.IsMounted(outer.Handler()) {
		t.Error("Expected outer.zip to stay mounted for B")
	}
	if got := r.Owners(outer.Handler()); got != 1 {
		t.Errorf("Expected 1 owner, got %d", got)
	}

	content, err := child(t, c, "outer.zip/a.txt").ReadAll(t.Context())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != "a" {
		t.Errorf("Expected 'a', got %q", content)
	}
}

func TestRegistry_MountWaitHonorsContext(t *testing.T) {
	release := make(chan struct{})
	closing := make(chan struct{})
	var once sync.Once

	r := newHookedRegistry(t, func(name string) error {
		if name == "inner.zip" {
			once.Do(func() {
				close(closing)
				<-release
			})
		}
		return nil
	})
	_, c := newMemoryContext(t, r, "vfsmemory://host", map[string][]byte{"outer.zip": nestedZip(t)})

	outer := child(t, c, "outer.zip")
	root, err := r.Mount(t.Context(), ObjectOwner("A"), outer.Handler(), vfs.MountZip)
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	inner, err := root.FindChild(t.Context(), "inner.zip")
	if err != nil {
		t.Fatalf("FindChild failed: %v", err)
	}
	if _, err := r.Mount(t.Context(), ObjectOwner("C"), inner, vfs.MountZip); err != nil {
		t.Fatalf("Mount nested failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Cleanup(context.Background(), ObjectOwner("A"))
	}()
	<-closing

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err = r.Mount(ctx, ObjectOwner("B"), outer.Handler(), vfs.MountZip)
	if !errors.Is(err, data.ErrMountFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected mount to give up with the context, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if got := r.Owners(outer.Handler()); got != 0 {
		t.Errorf("Expected no owners, got %d", got)
	}
}

func TestRegistry_CleanupIsolatesFailures(t *testing.T) {
	failure := errors.New("close failed")
	r := newHookedRegistry(t, func(name string) error {
		if name == "first.zip" {
			return failure
		}
		return nil
	})

	archive := nestedZip(t)
	_, c := newMemoryContext(t, r, "vfsmemory://host", map[string][]byte{
		"first.zip":  archive,
		"second.zip": archive,
	})

	first := child(t, c, "first.zip")
	second := child(t, c, "second.zip")
	owner := ObjectOwner("A")

	for _, target := range []*vfs.VirtualFile{first, second} {
		if _, err := r.Mount(t.Context(), owner, target.Handler(), vfs.MountZip); err != nil {
			t.Fatalf("Mount %s failed: %v", target.Name(), err)
		}
	}

	err := r.Cleanup(t.Context(), owner)
	if !errors.Is(err, data.ErrUnmountFailed) || !errors.Is(err, failure) {
		t.Errorf("Expected joined unmount failure, got %v", err)
	}

	for _, target := range []*vfs.VirtualFile{first, second} {
		if r.IsMounted(target.Handler()) {
			t.Errorf("Expected %s to be unmounted", target.Name())
		}
	}
	if got := len(r.Mounts()); got != 0 {
		t.Errorf("Expected no mounts, got %d", got)
	}
}
