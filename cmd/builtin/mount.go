package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/cmd"
)

// MountCommand mounts an archive for the duration of the command and
// lists its content. The mount is released before the command returns.
type MountCommand struct {
	Type vfs.MountType
}

func (mc *MountCommand) Name() string {
	return "mount"
}

func (mc *MountCommand) Description() string {
	return "Mount an archive and list its content"
}

func (mc *MountCommand) Usage() string {
	return "mount [-t zip|copy|expanded] [-r] <uri> [path]"
}

func (mc *MountCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (code int, err error) {
	if err := requireArgs(args, 1, mc.Usage()); err != nil {
		return 2, err
	}

	target, err := api.GetFile(ctx, args.Args[0])
	if err != nil {
		return 1, err
	}
	defer target.Close()

	owner := commandOwner{name: mc.Name()}
	defer func() {
		if cleanupErr := api.Cleanup(ctx, owner); cleanupErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release mount: %w", cleanupErr))
			code = max(code, 1)
		}
	}()

	root, err := api.Mount(ctx, owner, target, vfs.ParseMountType(args.String("type")))
	if err != nil {
		return 1, err
	}
	defer root.Close()

	dir := root
	if path := args.Arg(1, ""); path != "" {
		if dir, err = root.FindChild(ctx, path); err != nil {
			return 1, err
		}
		defer dir.Close()
	}

	attrs := vfs.ChildrenAttributes
	if args.Bool("recursive") {
		attrs = vfs.RecursiveAttributes
	}
	err = dir.Visit(ctx, vfs.VisitorFunc{
		Attrs: attrs,
		Fn: func(ctx context.Context, child *vfs.VirtualFile) error {
			writeLine(writer, "%s", child.PathName())
			return nil
		},
	})
	if err != nil {
		return 1, err
	}
	return 0, nil
}

func (mc *MountCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"type": {
				Name:        "type",
				Short:       "t",
				Type:        "string",
				Default:     mc.Type.String(),
				Description: "how the archive is exposed: zip, copy or expanded",
			},
			"recursive": {
				Name:        "recursive",
				Short:       "r",
				Type:        "bool",
				Description: "list the whole archive",
			},
		},
	}
}

type commandOwner struct {
	name string
}

func (o commandOwner) OwnerKey() any {
	return o
}

func (o commandOwner) String() string {
	return "command " + o.name
}
