package builtin

import (
	"context"
	"io"
	"time"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/cmd"
)

type LsCommand struct {
}

func (ls *LsCommand) Name() string {
	return "ls"
}

func (ls *LsCommand) Description() string {
	return "List the children of a directory"
}

func (ls *LsCommand) Usage() string {
	return "ls [-al] <uri>"
}

func (ls *LsCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := requireArgs(args, 1, ls.Usage()); err != nil {
		return 2, err
	}

	vf, err := api.GetFile(ctx, args.Args[0])
	if err != nil {
		return 1, err
	}
	defer vf.Close()

	leaf, err := vf.IsLeaf(ctx)
	if err != nil {
		return 1, err
	}
	if leaf {
		ls.print(ctx, writer, vf, args.Bool("long"))
		return 0, nil
	}

	visitor := vfs.NewCollectingVisitor(vfs.VisitorAttributes{IncludeHidden: args.Bool("all"), RecurseFilter: vfs.RecurseNone})
	if err := vf.Visit(ctx, visitor); err != nil {
		visitor.Close()
		return 1, err
	}
	children := visitor.Files()
	defer vfs.CloseAll(children)

	for _, child := range children {
		ls.print(ctx, writer, child, args.Bool("long"))
	}
	return 0, nil
}

func (ls *LsCommand) print(ctx context.Context, w io.Writer, vf *vfs.VirtualFile, long bool) {
	if !long {
		writeLine(w, "%s", displayName(ctx, vf))
		return
	}

	kind := "-"
	if leaf, _ := vf.IsLeaf(ctx); !leaf {
		kind = "d"
	}
	size, _ := vf.Size(ctx)
	modified, _ := vf.LastModified(ctx)
	writeLine(w, "%s %10d %s %s", kind, size, modified.Format(time.DateTime), displayName(ctx, vf))
}

func (ls *LsCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"all": {
				Name:        "all",
				Short:       "a",
				Type:        "bool",
				Description: "include hidden files",
			},
			"long": {
				Name:        "long",
				Short:       "l",
				Type:        "bool",
				Description: "show kind, size and modification time",
			},
		},
	}
}
