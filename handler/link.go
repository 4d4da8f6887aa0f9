package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/data"
	"github.com/mwantia/vfs/v2/mount/backend"
	"gopkg.in/yaml.v3"
)

// Link is a single entry of a link file.
type Link struct {
	Name string `yaml:"name"`
	// Target is an absolute URI, a path from the context root starting
	// with '/', or a path relative to the directory of the link file.
	Target string `yaml:"target"`
}

// LinkFile is the content of a '*.vfslink.yaml' file.
type LinkFile struct {
	Links []Link `yaml:"links"`
}

// ParseLinkFile decodes and validates a link file.
func ParseLinkFile(r io.Reader) (*LinkFile, error) {
	var lf LinkFile
	if err := yaml.NewDecoder(r).Decode(&lf); err != nil {
		if err == io.EOF {
			return &lf, nil
		}
		return nil, fmt.Errorf("%w: link file: %w", data.ErrInvalid, err)
	}

	seen := make(map[string]struct{}, len(lf.Links))
	for i, link := range lf.Links {
		name := strings.Trim(strings.TrimSpace(link.Name), data.Separator)
		if name == "" || strings.Contains(name, data.Separator) || data.IsSpecialToken(name) {
			return nil, fmt.Errorf("%w: link %d has invalid name '%s'", data.ErrInvalid, i, link.Name)
		}
		if strings.TrimSpace(link.Target) == "" {
			return nil, fmt.Errorf("%w: link '%s' has no target", data.ErrInvalid, name)
		}
		if _, exists := seen[name]; exists {
			return nil, fmt.Errorf("%w: link '%s' declared twice", data.ErrExist, name)
		}
		seen[name] = struct{}{}
		lf.Links[i].Name = name
	}

	return &lf, nil
}

// LinkHandler is the directory declared by a link file. Its children are
// the link targets, presented through DelegatingHandlers.
type LinkHandler struct {
	vfs.BaseHandler

	context  *BackedContext
	fileKey  string
	fileName string
	state    atomic.Pointer[linkState]
}

type linkState struct {
	modTime time.Time
	links   []Link
}

// NewLinkHandler parses the link file behind file and returns the directory it declares.
// The directory is named and addressed after the file without its link suffix.
func NewLinkHandler(ctx context.Context, file *BackedHandler) (*LinkHandler, error) {
	name := file.Name()
	if i := strings.LastIndex(strings.ToLower(name), data.LinkSuffix); i > 0 {
		name = name[:i]
	}

	h := &LinkHandler{
		context:  file.context,
		fileKey:  file.LocalPath(),
		fileName: file.PathName(),
	}
	h.Init(h, vfs.HandlerConfig{
		Name:      name,
		Kind:      vfs.KindLink,
		Context:   file.context,
		LocalPath: data.JoinPath(data.ParentPath(file.LocalPath()), name),
		Parent: vfs.ParentRef{
			Context: file.context,
			Path:    data.ParentPath(file.LocalPath()),
		},
		PathName: data.JoinPath(data.ParentPath(file.PathName()), name),
	})

	if _, err := h.load(ctx); err != nil {
		return nil, err
	}

	file.context.Remember(h)
	return h, nil
}

// Links returns the entries of the link file, reloading it after a change.
func (h *LinkHandler) Links(ctx context.Context) ([]Link, error) {
	if err := h.CheckClosed(); err != nil {
		return nil, err
	}

	state, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	return state.links, nil
}

func (h *LinkHandler) load(ctx context.Context) (*linkState, error) {
	modTime, err := backend.LastModified(ctx, h.context.fs, h.fileKey)
	if err != nil {
		return nil, data.IOFailure(err, h.fileName)
	}

	if state := h.state.Load(); state != nil && state.modTime.Equal(modTime) {
		return state, nil
	}

	r, err := h.context.fs.OpenObject(ctx, h.fileKey)
	if err != nil {
		return nil, data.IOFailure(err, h.fileName)
	}
	defer r.Close()

	lf, err := ParseLinkFile(r)
	if err != nil {
		return nil, data.IOFailure(err, h.fileName)
	}

	state := &linkState{modTime: modTime, links: lf.Links}
	h.state.Store(state)
	return state, nil
}

func (h *LinkHandler) IsLeaf(ctx context.Context) (bool, error) {
	if err := h.CheckClosed(); err != nil {
		return false, err
	}
	return false, nil
}

func (h *LinkHandler) Exists(ctx context.Context) (bool, error) {
	if err := h.CheckClosed(); err != nil {
		return false, err
	}
	return backend.Exists(ctx, h.context.fs, h.fileKey)
}

func (h *LinkHandler) Size(ctx context.Context) (int64, error) {
	if err := h.CheckClosed(); err != nil {
		return 0, err
	}
	return 0, nil
}

func (h *LinkHandler) LastModified(ctx context.Context) (time.Time, error) {
	if err := h.CheckClosed(); err != nil {
		return time.Time{}, err
	}
	modTime, err := backend.LastModified(ctx, h.context.fs, h.fileKey)
	if err != nil {
		return time.Time{}, data.IOFailure(err, h.fileName)
	}
	return modTime, nil
}

func (h *LinkHandler) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := h.CheckClosed(); err != nil {
		return nil, err
	}
	return nil, data.IOFailure(data.ErrIsDirectory, h.PathName())
}

func (h *LinkHandler) Children(ctx context.Context, ignoreErrors bool) ([]vfs.Handler, error) {
	links, err := h.Links(ctx)
	if err != nil {
		if ignoreErrors && data.Skippable(err) {
			return nil, nil
		}
		return nil, err
	}

	children := make([]vfs.Handler, 0, len(links))
	for _, link := range links {
		child, err := h.linkChild(ctx, link)
		if err != nil {
			if ignoreErrors && data.Skippable(err) {
				h.Context().Logger().Debug("Children: skipping link '%s' in '%s': %v", link.Name, h.PathName(), err)
				continue
			}
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func (h *LinkHandler) CreateChild(ctx context.Context, name string) (vfs.Handler, error) {
	links, err := h.Links(ctx)
	if err != nil {
		return nil, err
	}

	for _, link := range links {
		if link.Name == name {
			return h.linkChild(ctx, link)
		}
	}
	return nil, data.NotFound(data.JoinPath(h.PathName(), name))
}

func (h *LinkHandler) FindChild(ctx context.Context, path string) (vfs.Handler, error) {
	return vfs.FindChildStructured(ctx, h, path)
}

// Delete removes the link file, never the targets.
func (h *LinkHandler) Delete(ctx context.Context, gracePeriod time.Duration) (bool, error) {
	if err := h.CheckClosed(); err != nil {
		return false, err
	}
	if h.context.readOnly {
		return false, data.IOFailure(data.ErrReadOnly, h.fileName)
	}

	if err := h.context.fs.DeleteObject(ctx, h.fileKey, false); err != nil {
		if errors.Is(err, data.ErrNotExist) {
			return false, nil
		}
		return false, data.IOFailure(err, h.fileName)
	}
	return true, nil
}

func (h *LinkHandler) linkChild(ctx context.Context, link Link) (vfs.Handler, error) {
	localPath := data.JoinPath(h.LocalPath(), link.Name)
	if recaller, ok := h.Context().(interface {
		Recall(string) (vfs.Handler, bool)
	}); ok {
		if existing, ok := recaller.Recall(localPath); ok {
			if wrapper, ok := existing.(*DelegatingHandler); ok {
				return wrapper, nil
			}
		}
	}

	target, err := h.resolveTarget(ctx, link.Target)
	if err != nil {
		return nil, data.IOFailure(err, data.JoinPath(h.PathName(), link.Name))
	}
	return NewDelegatingHandler(h, link.Name, target), nil
}

func (h *LinkHandler) resolveTarget(ctx context.Context, target string) (vfs.Handler, error) {
	if u, err := url.Parse(target); err == nil && u.Scheme != "" {
		resolver, ok := h.Context().(interface{ Resolver() vfs.Resolver })
		if !ok || resolver.Resolver() == nil {
			return nil, fmt.Errorf("%w: absolute link target '%s'", data.ErrNotSupported, target)
		}
		return resolver.Resolver()(ctx, target)
	}

	if strings.HasPrefix(target, data.Separator) {
		root, err := h.Context().Root(ctx)
		if err != nil {
			return nil, err
		}
		return h.Context().FindChild(ctx, root, target)
	}

	dir, err := h.Context().Lookup(ctx, data.ParentPath(h.fileKey))
	if err != nil {
		return nil, err
	}
	return h.Context().FindChild(ctx, dir, target)
}
