package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend"
	"github.com/mwantia/vfs/v2/mount/backend/ephemeral"
)

// MemoryScheme addresses in-memory trees; the host names the tree.
const MemoryScheme = "vfsmemory"

// MemoryFactory owns one in-memory context per host.
// Content is written through the factory and read through the contexts.
type MemoryFactory struct {
	mu       sync.Mutex
	opts     []vfs.ContextOption
	contexts map[string]*BackedContext
}

// NewMemoryFactory applies opts to every context it creates.
func NewMemoryFactory(opts ...vfs.ContextOption) *MemoryFactory {
	return &MemoryFactory{
		opts:     opts,
		contexts: make(map[string]*BackedContext),
	}
}

func (f *MemoryFactory) Schemes() []string {
	return []string{MemoryScheme}
}

// NewContext returns the context of the host of rootURI, creating it when needed.
func (f *MemoryFactory) NewContext(ctx context.Context, rootURI *url.URL, opts ...vfs.ContextOption) (vfs.Context, error) {
	return f.context(ctx, rootURI, opts)
}

// Context returns the context of the host named in uri.
func (f *MemoryFactory) Context(ctx context.Context, uri string) (*BackedContext, error) {
	u, err := parseMemoryURI(uri)
	if err != nil {
		return nil, err
	}
	return f.context(ctx, u, nil)
}

// PutFile stores content at uri, creating missing directories.
func (f *MemoryFactory) PutFile(ctx context.Context, uri string, content []byte) error {
	c, key, err := f.resolve(ctx, uri)
	if err != nil {
		return err
	}
	if key == "" {
		return data.IOFailure(data.ErrIsDirectory, uri)
	}

	if _, err := writable(c).WriteObject(ctx, key, bytes.NewReader(content)); err != nil {
		return data.IOFailure(err, uri)
	}
	return nil
}

// Mkdir creates the directory at uri and all missing parents.
func (f *MemoryFactory) Mkdir(ctx context.Context, uri string) error {
	c, key, err := f.resolve(ctx, uri)
	if err != nil {
		return err
	}

	if err := writable(c).MkdirAll(ctx, key); err != nil {
		return data.IOFailure(err, uri)
	}
	return nil
}

// Delete removes uri and everything below it; the host root cannot be deleted.
func (f *MemoryFactory) Delete(ctx context.Context, uri string) (bool, error) {
	c, key, err := f.resolve(ctx, uri)
	if err != nil {
		return false, err
	}
	if key == "" {
		return false, data.IOFailure(data.ErrPermission, uri)
	}

	if err := writable(c).DeleteObject(ctx, key, true); err != nil {
		if errors.Is(err, data.ErrNotExist) {
			return false, nil
		}
		return false, data.IOFailure(err, uri)
	}
	return true, nil
}

// Close closes every context created by this factory.
func (f *MemoryFactory) Close(ctx context.Context) error {
	f.mu.Lock()
	contexts := make([]*BackedContext, 0, len(f.contexts))
	for _, c := range f.contexts {
		contexts = append(contexts, c)
	}
	f.mu.Unlock()

	errs := &data.Errors{}
	for _, c := range contexts {
		errs.Add(c.Close(ctx))
	}
	return errs.Errors()
}

func (f *MemoryFactory) resolve(ctx context.Context, uri string) (*BackedContext, string, error) {
	u, err := parseMemoryURI(uri)
	if err != nil {
		return nil, "", err
	}

	key, err := data.NormalizePath(u.Path)
	if err != nil {
		return nil, "", err
	}

	c, err := f.context(ctx, u, nil)
	if err != nil {
		return nil, "", err
	}
	return c, key, nil
}

func (f *MemoryFactory) context(ctx context.Context, u *url.URL, opts []vfs.ContextOption) (*BackedContext, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("%w: memory uri '%s' has no host", data.ErrInvalidPath, u)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.contexts[u.Host]; ok && !c.IsClosed() {
		return c, nil
	}

	rootURI := &url.URL{Scheme: MemoryScheme, Host: u.Host, RawQuery: u.RawQuery}
	options := append(append([]vfs.ContextOption{}, f.opts...), opts...)

	c, err := NewBackedContext(ctx, rootURI, ephemeral.NewEphemeralBackend(), vfs.KindMemory, options...)
	if err != nil {
		return nil, err
	}

	host := u.Host
	c.OnClose(func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()

		if current, ok := f.contexts[host]; ok && current == c {
			delete(f.contexts, host)
		}
		return nil
	})

	f.contexts[host] = c
	return c, nil
}

func writable(c *BackedContext) backend.WritableFileSystem {
	return c.fs.(backend.WritableFileSystem)
}

func parseMemoryURI(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s': %w", data.ErrInvalidPath, uri, err)
	}
	if u.Scheme != MemoryScheme {
		return nil, fmt.Errorf("%w: '%s' is not a %s uri", data.ErrInvalidPath, uri, MemoryScheme)
	}
	return u, nil
}
