package cmd

import (
	"context"
	"io"

	vfs "github.com/mwantia/vfs/v2"
)

// API is the part of the virtual file system that commands operate on.
type API interface {
	// GetFile resolves uri and returns a view the caller must close.
	GetFile(ctx context.Context, uri string) (*vfs.VirtualFile, error)

	// Resolve returns a live view of a previously persisted identity.
	Resolve(ctx context.Context, id vfs.Identity) (*vfs.VirtualFile, error)

	// Mount exposes the archive behind vf on behalf of owner.
	Mount(ctx context.Context, owner vfs.Owner, vf *vfs.VirtualFile, mountType vfs.MountType) (*vfs.VirtualFile, error)

	// Cleanup releases every mount held by owner.
	Cleanup(ctx context.Context, owner vfs.Owner) error
}

var _ API = (*vfs.VirtualFileSystem)(nil)

// Command represents an executable command within the virtual filesystem.
type Command interface {
	// Name returns the command identifier
	Name() string

	// Description returns human-readable help text
	Description() string

	// Usage returns a usage string for help (e.g. "ls -al [uri]")
	Usage() string

	// Execute runs the command with parsed arguments
	// The writer parameter is where command output should be written
	// Returns exit code (0 = success) and error message
	Execute(ctx context.Context, api API, args *CommandArgs, writer io.Writer) (int, error)

	// GetFlags returns the flag set for this command (this is optional)
	GetFlags() *CommandFlagSet
}
