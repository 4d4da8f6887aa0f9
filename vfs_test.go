package vfs_test

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/cache"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/handler"
	"github.com/mwantia/vfs/v2/mount"
)

func newManager(t *testing.T, opts ...vfs.VirtualFileSystemOption) (*vfs.VirtualFileSystem, *handler.MemoryFactory) {
	t.Helper()

	factory := handler.NewMemoryFactory()
	v, err := vfs.New(append([]vfs.VirtualFileSystemOption{
		vfs.WithFactory(factory),
		vfs.WithFactory(handler.NewFileFactory()),
		vfs.WithCache(cache.NewPrefixCache()),
	}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		v.Close(context.Background())
	})
	return v, factory
}

// putFile creates the context through the manager first, so that it carries
// the manager's resolver and mount table.
func putFile(t *testing.T, v *vfs.VirtualFileSystem, factory *handler.MemoryFactory, host, path string, content []byte) {
	t.Helper()

	if _, err := v.GetContext(t.Context(), "vfsmemory://"+host); err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if err := factory.PutFile(t.Context(), "vfsmemory://"+host+"/"+path, content); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}
}

func TestVirtualFileSystem_GetFile(t *testing.T) {
	v, factory := newManager(t)
	putFile(t, v, factory, "host1", "dir/file.txt", []byte("hello"))

	file, err := v.GetFile(t.Context(), "vfsmemory://host1/dir/file.txt")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	defer file.Close()

	content, err := file.ReadAll(t.Context())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("Expected 'hello', got %q", content)
	}

	dir, err := v.GetFile(t.Context(), "vfsmemory://host1/dir")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	defer dir.Close()

	if leaf, _ := dir.IsLeaf(t.Context()); leaf {
		t.Error("Expected 'dir' not to be a leaf")
	}

	url, err := dir.URL(t.Context())
	if err != nil {
		t.Fatalf("URL failed: %v", err)
	}
	if url != "vfsmemory://host1/dir/" {
		t.Errorf("Expected 'vfsmemory://host1/dir/', got %q", url)
	}

	if got := len(v.Contexts()); got != 1 {
		t.Errorf("Expected 1 context, got %d", got)
	}
}

func TestVirtualFileSystem_InvalidURIs(t *testing.T) {
	v, _ := newManager(t)

	tests := map[string]struct {
		uri      string
		expected error
	}{
		"no scheme":      {uri: "relative/path", expected: data.ErrInvalidPath},
		"unknown scheme": {uri: "nope://host/file", expected: data.ErrNotSupported},
		"above root":     {uri: "vfsmemory://host1/../x", expected: data.ErrReverseOnTop},
		"missing":        {uri: "vfsmemory://host1/missing", expected: data.ErrNotExist},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.GetFile(t.Context(), tt.uri); !errors.Is(err, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestVirtualFileSystem_ReverseTokens(t *testing.T) {
	v, factory := newManager(t)
	putFile(t, v, factory, "host1", "a/x", []byte("x"))
	putFile(t, v, factory, "host1", "b/y", []byte("y"))

	direct, err := v.GetFile(t.Context(), "vfsmemory://host1/b")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	defer direct.Close()

	reversed, err := v.GetFile(t.Context(), "vfsmemory://host1/a/../b")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	defer reversed.Close()

	if !direct.Equal(reversed) {
		t.Errorf("Expected %s to equal %s", reversed, direct)
	}
}

func TestIdentity_RoundTrip(t *testing.T) {
	v, factory := newManager(t)
	putFile(t, v, factory, "host1", "dir/file.txt", []byte("hello"))

	file, err := v.GetFile(t.Context(), "vfsmemory://host1/dir/file.txt")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	defer file.Close()

	id, err := file.Identity()
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}

	raw, err := id.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	again, err := id.MarshalBinary()
	if err != nil || !bytes.Equal(raw, again) {
		t.Errorf("Expected deterministic encoding, got %x and %x", raw, again)
	}

	var decoded vfs.Identity
	if err := decoded.UnmarshalBinary(raw); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if decoded != id {
		t.Errorf("Expected %+v, got %+v", id, decoded)
	}

	resolved, err := v.Resolve(t.Context(), decoded)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer resolved.Close()

	if !resolved.Equal(file) {
		t.Errorf("Expected %s, got %s", file, resolved)
	}

	if _, err := v.Resolve(t.Context(), vfs.Identity{}); !errors.Is(err, data.ErrInvalid) {
		t.Errorf("Expected ErrInvalid for the zero identity, got %v", err)
	}
}

func TestIdentity_AcrossMountedArchive(t *testing.T) {
	registry, err := mount.NewRegistry(mount.WithTempDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	v, factory := newManager(t, vfs.WithMounts(registry))

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, _ := w.Create("docs/readme.txt")
	f.Write([]byte("inside"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	putFile(t, v, factory, "host1", "bundle.zip", buf.Bytes())

	archive, err := v.GetFile(t.Context(), "vfsmemory://host1/bundle.zip")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	defer archive.Close()

	owner := mount.ObjectOwner("test")
	root, err := v.Mount(t.Context(), owner, archive, vfs.MountZip)
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	defer root.Close()

	readme, err := root.FindChild(t.Context(), "docs/readme.txt")
	if err != nil {
		t.Fatalf("FindChild failed: %v", err)
	}
	defer readme.Close()

	id, err := readme.Identity()
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if id.RootURI != "vfsmemory://host1" || id.Path != "bundle.zip/docs/readme.txt" {
		t.Errorf("Expected identity in the outer context, got %+v", id)
	}

	resolved, err := v.Resolve(t.Context(), id)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	defer resolved.Close()

	content, err := resolved.ReadAll(t.Context())
	if err != nil || string(content) != "inside" {
		t.Errorf("Expected 'inside', got %q (%v)", content, err)
	}

	if err := v.Cleanup(t.Context(), owner); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if registry.IsMounted(archive.Handler()) {
		t.Error("Expected archive to be unmounted after cleanup")
	}
}

func TestVirtualFileSystem_AbsoluteLinkTargets(t *testing.T) {
	v, factory := newManager(t)
	putFile(t, v, factory, "host2", "data.txt", []byte("remote data"))
	putFile(t, v, factory, "host1", "shortcuts.vfslink.yaml", []byte("links:\n  - name: remote\n    target: vfsmemory://host2/data.txt\n"))

	remote, err := v.GetFile(t.Context(), "vfsmemory://host1/shortcuts/remote")
	if err != nil {
		t.Fatalf("GetFile failed: %v", err)
	}
	defer remote.Close()

	content, err := remote.ReadAll(t.Context())
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(content) != "remote data" {
		t.Errorf("Expected 'remote data', got %q", content)
	}
	if remote.PathName() != "shortcuts/remote" {
		t.Errorf("Expected 'shortcuts/remote', got %q", remote.PathName())
	}
}

func TestVirtualFileSystem_Close(t *testing.T) {
	v, factory := newManager(t)
	putFile(t, v, factory, "host1", "file.txt", []byte("x"))
	putFile(t, v, factory, "host2", "file.txt", []byte("y"))

	contexts := v.Contexts()
	if len(contexts) != 2 {
		t.Fatalf("Expected 2 contexts, got %d", len(contexts))
	}

	// closing a single context makes the manager forget it
	if err := contexts[0].Close(t.Context()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := len(v.Contexts()); got != 1 {
		t.Errorf("Expected 1 context, got %d", got)
	}

	if err := v.Close(t.Context()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !contexts[1].IsClosed() {
		t.Error("Expected remaining context to be closed")
	}
	if _, err := v.GetFile(t.Context(), "vfsmemory://host1/file.txt"); !errors.Is(err, data.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

// slowFactory delays context creation so that concurrent callers overlap.
type slowFactory struct {
	vfs.ContextFactory

	created atomic.Int32
}

func (f *slowFactory) NewContext(ctx context.Context, rootURI *url.URL, opts ...vfs.ContextOption) (vfs.Context, error) {
	f.created.Add(1)
	time.Sleep(50 * time.Millisecond)
	return f.ContextFactory.NewContext(ctx, rootURI, opts...)
}

func TestVirtualFileSystem_ConcurrentGetContext(t *testing.T) {
	factory := &slowFactory{ContextFactory: handler.NewFileFactory()}
	v, err := vfs.New(vfs.WithFactory(factory), vfs.WithCache(cache.NewPrefixCache()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	uri := "file://" + t.TempDir()
	contexts := make([]vfs.Context, 8)
	errs := make([]error, 8)

	var wg sync.WaitGroup
	for i := range contexts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			contexts[i], errs[i] = v.GetContext(t.Context(), uri)
		}()
	}
	wg.Wait()

	for i, c := range contexts {
		if errs[i] != nil {
			t.Fatalf("GetContext failed: %v", errs[i])
		}
		if c != contexts[0] {
			t.Errorf("Expected one shared context, got %s and %s", c.Key(), contexts[0].Key())
		}
	}
	if got := factory.created.Load(); got != 1 {
		t.Errorf("Expected 1 created context, got %d", got)
	}
	if got := len(v.Contexts()); got != 1 {
		t.Errorf("Expected 1 registered context, got %d", got)
	}

	if err := v.Close(t.Context()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !contexts[0].IsClosed() {
		t.Error("Expected the shared context to be closed")
	}
}

func TestVirtualFileSystem_ReopenKeepsSingleEntry(t *testing.T) {
	v, factory := newManager(t)
	putFile(t, v, factory, "host1", "file.txt", []byte("x"))

	first, err := v.GetContext(t.Context(), "vfsmemory://host1")
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if err := first.Close(t.Context()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := v.GetContext(t.Context(), "vfsmemory://host1")
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if second == first {
		t.Error("Expected a new context after closing the first")
	}

	contexts := v.Contexts()
	if len(contexts) != 1 || contexts[0] != second {
		t.Errorf("Expected only the reopened context, got %d contexts", len(contexts))
	}
}
