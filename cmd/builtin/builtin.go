// Package builtin contains the commands every command center starts with.
package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/cmd"
)

var dirColor = color.New(color.FgBlue, color.Bold)

// InitBuiltin registers all builtin commands with cc.
// mountType is the default of the mount command.
func InitBuiltin(cc *cmd.CommandCenter, mountType vfs.MountType) error {
	for _, command := range []cmd.Command{
		&LsCommand{},
		&TreeCommand{},
		&CatCommand{},
		&StatCommand{},
		&ResolveCommand{},
		&MountCommand{Type: mountType},
	} {
		if err := cc.Register(command); err != nil {
			return err
		}
	}
	return nil
}

// displayName returns the name of vf, with a trailing slash and color for directories.
func displayName(ctx context.Context, vf *vfs.VirtualFile) string {
	name := vf.Name()
	if name == "" {
		name = vf.String()
	}

	leaf, err := vf.IsLeaf(ctx)
	if err != nil || leaf {
		return name
	}
	return dirColor.Sprint(name + "/")
}

func requireArgs(args *cmd.CommandArgs, n int, usage string) error {
	if len(args.Args) < n {
		return fmt.Errorf("missing arguments, usage: %s", usage)
	}
	return nil
}

func writeLine(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, format+"\n", a...)
}
