package vfs

import (
	"context"

	"github.com/mwantia/vfs/v2/data"
)

// FindChildStructured descends from h one token at a time.
//
// A leaf stops the descent, '..' ascends to the parent, a StructuredHandler
// creates exactly one child per token and any other handler receives the
// whole remaining path through its own FindChild.
func FindChildStructured(ctx context.Context, h Handler, path string) (Handler, error) {
	if err := h.base().CheckClosed(); err != nil {
		return nil, err
	}

	tokens := data.TokenizePath(path)
	current := h
	for i, token := range tokens {
		if data.IsCurrentToken(token) {
			continue
		}

		leaf, err := current.IsLeaf(ctx)
		if err != nil {
			return nil, err
		}
		if leaf {
			return nil, data.IsLeaf(current.PathName())
		}

		if data.IsReverseToken(token) {
			parent, err := current.Parent(ctx)
			if err != nil {
				return nil, err
			}
			if parent == nil {
				return nil, data.ReverseOnTop(path)
			}
			current = parent
			continue
		}

		structured, ok := current.(StructuredHandler)
		if !ok {
			return current.FindChild(ctx, data.RemainingPath(tokens, i))
		}

		child, err := structured.CreateChild(ctx, token)
		if err != nil {
			return nil, err
		}
		current = child
	}

	return current, nil
}

// FindChildSimple matches the first segment of path against the materialized
// children of h and continues below the match with the rest of the path.
func FindChildSimple(ctx context.Context, h Handler, path string) (Handler, error) {
	if err := h.base().CheckClosed(); err != nil {
		return nil, err
	}

	normalized, err := data.NormalizePath(path)
	if err != nil {
		return nil, err
	}
	if normalized == "" {
		return h, nil
	}

	tokens := data.TokenizePath(normalized)
	children, err := h.Children(ctx, false)
	if err != nil {
		return nil, err
	}

	for _, child := range children {
		if child.Name() != tokens[0] {
			continue
		}
		if len(tokens) == 1 {
			return child, nil
		}
		return child.FindChild(ctx, data.RemainingPath(tokens, 1))
	}

	return nil, data.NotFound(data.JoinPath(h.PathName(), normalized))
}
