package handler

import (
	"context"
	"net/url"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend"
	"github.com/mwantia/vfs/v2/mount/backend/direct"
	"github.com/mwantia/vfs/v2/mount/backend/readonly"
)

// FileScheme addresses directories of the local disk.
const FileScheme = "file"

// NewBackendFunc opens the backend serving rootURI.
type NewBackendFunc func(ctx context.Context, rootURI *url.URL) (backend.FileSystem, error)

// RootFunc trims a requested URI down to the root of the context serving it.
type RootFunc func(u *url.URL) (*url.URL, error)

// BackendFactory creates one BackedContext per root URI.
// A root URI with '?readonly=true' wraps the backend so that it rejects deletes.
type BackendFactory struct {
	schemes    []string
	kind       vfs.HandlerKind
	newBackend NewBackendFunc
	root       RootFunc
}

func NewBackendFactory(kind vfs.HandlerKind, newBackend NewBackendFunc, schemes ...string) *BackendFactory {
	return &BackendFactory{
		schemes:    schemes,
		kind:       kind,
		newBackend: newBackend,
	}
}

// WithRoot makes every context root at root(uri) instead of the requested URI.
// The backend still receives the requested URI including its credentials.
func (f *BackendFactory) WithRoot(root RootFunc) *BackendFactory {
	f.root = root
	return f
}

func (f *BackendFactory) Schemes() []string {
	return f.schemes
}

func (f *BackendFactory) NewContext(ctx context.Context, rootURI *url.URL, opts ...vfs.ContextOption) (vfs.Context, error) {
	fs, err := f.newBackend(ctx, rootURI)
	if err != nil {
		return nil, err
	}
	if vfs.ParseRootOptions(rootURI).Bool(vfs.OptionReadOnly, false) {
		fs = readonly.Wrap(fs)
	}

	if f.root != nil {
		if rootURI, err = f.root(rootURI); err != nil {
			fs.Close(ctx)
			return nil, err
		}
	}

	c, err := NewBackedContext(ctx, rootURI, fs, f.kind, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewFileFactory serves 'file://' URIs from the local disk.
// A root URI with '?readonly=true' rejects deletes.
func NewFileFactory() *BackendFactory {
	return NewBackendFactory(vfs.KindFile, func(ctx context.Context, rootURI *url.URL) (backend.FileSystem, error) {
		if rootURI.Host != "" && rootURI.Host != "localhost" {
			return nil, data.InvalidPath(rootURI.String())
		}
		readOnly := vfs.ParseRootOptions(rootURI).Bool(vfs.OptionReadOnly, false)
		return direct.NewDirectBackend(rootURI.Path, readOnly)
	}, FileScheme)
}
