package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/handler"
	"github.com/mwantia/vfs/v2/log"
	"github.com/mwantia/vfs/v2/mount/backend"
	"github.com/mwantia/vfs/v2/mount/backend/archive"
	"github.com/mwantia/vfs/v2/mount/backend/direct"
)

const (
	// ArchiveScheme addresses the content of mounted archives.
	ArchiveScheme = "vfszip"
	// OptionBase names the scheme of the context an archive was mounted from.
	OptionBase = "base"
)

// ArchiveProvider turns an archive leaf into a navigable tree.
// tempDir is private to the mount and removed by the registry on unmount.
type ArchiveProvider interface {
	MountArchive(ctx context.Context, target vfs.Handler, tempDir string, mountType vfs.MountType) (io.Closer, vfs.Handler, error)
}

// ZipProvider mounts zip-format archives.
type ZipProvider struct {
	log   *log.Logger
	mount vfs.MountTable
}

// NewZipProvider returns a provider whose archive contexts use mt for nested mounts.
func NewZipProvider(logger *log.Logger, mt vfs.MountTable) *ZipProvider {
	if logger == nil {
		logger = log.Discard()
	}
	return &ZipProvider{log: logger, mount: mt}
}

func (p *ZipProvider) MountArchive(ctx context.Context, target vfs.Handler, tempDir string, mountType vfs.MountType) (io.Closer, vfs.Handler, error) {
	ab, err := p.openArchive(ctx, target, tempDir, mountType)
	if err != nil {
		return nil, nil, err
	}

	var fs backend.FileSystem = ab
	if mountType == vfs.MountExpanded {
		dir := filepath.Join(tempDir, "expanded")
		err := ab.Extract(ctx, dir)
		ab.Close(ctx)
		if err != nil {
			return nil, nil, err
		}

		if fs, err = direct.NewDirectBackend(dir, true); err != nil {
			return nil, nil, err
		}
	}

	rootURI, err := archiveURI(target)
	if err != nil {
		fs.Close(ctx)
		return nil, nil, err
	}

	c, err := handler.NewBackedContext(ctx, rootURI, fs, vfs.KindArchive, p.contextOptions(target)...)
	if err != nil {
		return nil, nil, err
	}

	root, err := c.Root(ctx)
	if err != nil {
		c.Close(ctx)
		return nil, nil, err
	}

	p.log.Debug("MountArchive: mounted %s as %s (%s)", target.PathName(), c.Key(), mountType)
	return contextCloser{c}, root, nil
}

// openArchive reads a disk target in place unless a copy was requested.
// Targets without a local path are always copied first.
func (p *ZipProvider) openArchive(ctx context.Context, target vfs.Handler, tempDir string, mountType vfs.MountType) (*archive.ArchiveBackend, error) {
	if mountType != vfs.MountCopy {
		if local, ok := target.(interface{ OSPath() (string, bool) }); ok {
			if path, ok := local.OSPath(); ok {
				return archive.OpenArchiveFile(path)
			}
		}
	}

	name := target.Name()
	if name == "" {
		name = "archive"
	}
	path := filepath.Join(tempDir, name)
	if err := copyContent(ctx, target, path); err != nil {
		return nil, err
	}
	return archive.OpenArchiveFile(path)
}

func (p *ZipProvider) contextOptions(target vfs.Handler) []vfs.ContextOption {
	parent := vfs.ParentRef{
		Context: target.Context(),
		Path:    data.ParentPath(target.LocalPath()),
	}
	if ref, ok := target.(interface{ ParentRef() vfs.ParentRef }); ok {
		parent = ref.ParentRef()
	}

	opts := []vfs.ContextOption{
		vfs.WithContextLogger(target.Context().Logger().Named(ArchiveScheme)),
		vfs.WithMountTable(p.mount),
		vfs.WithRootPlacement(parent, target.PathName(), target.Name()),
	}
	if resolver, ok := target.Context().(interface{ Resolver() vfs.Resolver }); ok {
		opts = append(opts, vfs.WithResolver(resolver.Resolver()))
	}
	return opts
}

// archiveURI places the archive below the location of its target, so that
// registry entries of nested archives sit beneath the outer one.
func archiveURI(target vfs.Handler) (*url.URL, error) {
	uri, err := target.URI()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set(OptionBase, baseScheme(uri))
	options := target.Context().Options()
	for _, key := range []string{vfs.OptionAutoMount, vfs.OptionMountType} {
		if v, ok := options.Get(key); ok {
			query.Set(key, v)
		}
	}

	return &url.URL{
		Scheme:   ArchiveScheme,
		Host:     uri.Host,
		Path:     uri.Path,
		RawQuery: query.Encode(),
	}, nil
}

func baseScheme(uri *url.URL) string {
	if base := uri.Query().Get(OptionBase); base != "" {
		return base
	}
	return uri.Scheme
}

// copyContent writes the content of h into a new file at path.
func copyContent(ctx context.Context, h vfs.Handler, path string) error {
	r, err := h.Open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create copy of '%s': %w", h.PathName(), err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return errors.Join(fmt.Errorf("failed to copy '%s': %w", h.PathName(), err), os.Remove(path))
	}
	return f.Close()
}

type contextCloser struct {
	c vfs.Context
}

func (cc contextCloser) Close() error {
	return cc.c.Close(context.Background())
}
