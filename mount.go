package vfs

import (
	"context"
	"strings"
)

// MountType selects how an archive is exposed when it is mounted.
type MountType int

const (
	// MountZip reads the archive in place when the target lives on disk.
	MountZip MountType = iota
	// MountCopy reads a private temp copy of the archive.
	MountCopy
	// MountExpanded extracts the archive into a temp directory.
	MountExpanded
)

func (t MountType) String() string {
	switch t {
	case MountZip:
		return "zip"
	case MountCopy:
		return "copy"
	case MountExpanded:
		return "expanded"
	default:
		return "unknown"
	}
}

// ParseMountType falls back to MountZip for unknown values.
func ParseMountType(s string) MountType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "copy":
		return MountCopy
	case "expanded", "expand", "unpacked":
		return MountExpanded
	default:
		return MountZip
	}
}

// Owner identifies on whose behalf a mount is held open.
// Two owners with equal keys are interchangeable.
type Owner interface {
	OwnerKey() any
}

type contextOwner struct {
	key string
}

func (o contextOwner) OwnerKey() any {
	return o
}

func (o contextOwner) String() string {
	return "context " + o.key
}

// ContextOwner returns the owner used for mounts a context creates by itself.
// The context releases them when it closes.
func ContextOwner(c Context) Owner {
	return contextOwner{key: c.Key()}
}

// MountTable exposes archive mounts to the handlers of a context.
type MountTable interface {
	// Mount exposes the archive behind target and returns the root of its content.
	Mount(ctx context.Context, owner Owner, target Handler, mountType MountType) (Handler, error)
	// MountedRoot returns the root mounted over target, if any.
	MountedRoot(target Handler) (Handler, bool)
	IsMounted(target Handler) bool
	// Cleanup releases every mount held by owner.
	Cleanup(ctx context.Context, owner Owner) error
}
