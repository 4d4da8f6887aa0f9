package builtin

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/cmd"
	"github.com/mwantia/vfs/v2/data"
)

type TreeCommand struct {
}

func (tc *TreeCommand) Name() string {
	return "tree"
}

func (tc *TreeCommand) Description() string {
	return "Print the tree below a directory"
}

func (tc *TreeCommand) Usage() string {
	return "tree [-a] [-L depth] [--leaves] [--name pattern] <uri>"
}

func (tc *TreeCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := requireArgs(args, 1, tc.Usage()); err != nil {
		return 2, err
	}

	vf, err := api.GetFile(ctx, args.Args[0])
	if err != nil {
		return 1, err
	}
	defer vf.Close()

	base := len(data.TokenizePath(vf.PathName()))
	depth := func(child *vfs.VirtualFile) int {
		return len(data.TokenizePath(child.PathName())) - base
	}
	level := args.Int("level")
	files, dirs := 0, 0

	pattern := args.String("name")
	if _, err := path.Match(pattern, ""); err != nil {
		return 2, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	visitor := vfs.VisitorFunc{
		Attrs: vfs.VisitorAttributes{
			IncludeHidden: args.Bool("all"),
			LeavesOnly:    args.Bool("leaves"),
			RecurseFilter: func(_ context.Context, child *vfs.VirtualFile) bool {
				return level <= 0 || depth(child) < level
			},
		},
		Fn: func(ctx context.Context, child *vfs.VirtualFile) error {
			if leaf, _ := child.IsLeaf(ctx); leaf {
				files++
			} else {
				dirs++
			}
			writeLine(writer, "%s%s", strings.Repeat("  ", max(depth(child), 1)), displayName(ctx, child))
			return nil
		},
	}

	var v vfs.Visitor = visitor
	if pattern != "" {
		v = vfs.FilterVisitor{
			Visitor: visitor,
			Filter: func(_ context.Context, child *vfs.VirtualFile) bool {
				matched, _ := path.Match(pattern, child.Name())
				return matched
			},
		}
	}
	writeLine(writer, "%s", vf.String())
	if err := vf.Visit(ctx, v); err != nil {
		return 1, err
	}

	writeLine(writer, "\n%d directories, %d files", dirs, files)
	return 0, nil
}

func (tc *TreeCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"all": {
				Name:        "all",
				Short:       "a",
				Type:        "bool",
				Description: "include hidden files",
			},
			"level": {
				Name:        "level",
				Short:       "L",
				Type:        "int",
				Description: "descend at most this many levels",
			},
			"name": {
				Name:        "name",
				Short:       "n",
				Type:        "string",
				Description: "only print entries whose name matches the glob pattern",
			},
			"leaves": {
				Name:        "leaves",
				Type:        "bool",
				Description: "only print leaves",
			},
		},
	}
}
