package builtin

import (
	"context"
	"encoding/hex"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/cmd"
)

type StatCommand struct {
}

func (sc *StatCommand) Name() string {
	return "stat"
}

func (sc *StatCommand) Description() string {
	return "Show the attributes and identity of a file"
}

func (sc *StatCommand) Usage() string {
	return "stat <uri>"
}

func (sc *StatCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := requireArgs(args, 1, sc.Usage()); err != nil {
		return 2, err
	}

	vf, err := api.GetFile(ctx, args.Args[0])
	if err != nil {
		return 1, err
	}
	defer vf.Close()

	if err := writeStat(ctx, writer, vf); err != nil {
		return 1, err
	}
	return 0, nil
}

func writeStat(ctx context.Context, w io.Writer, vf *vfs.VirtualFile) error {
	url, err := vf.URL(ctx)
	if err != nil {
		return err
	}
	leaf, err := vf.IsLeaf(ctx)
	if err != nil {
		return err
	}
	size, err := vf.Size(ctx)
	if err != nil {
		return err
	}
	modified, err := vf.LastModified(ctx)
	if err != nil {
		return err
	}
	id, err := vf.Identity()
	if err != nil {
		return err
	}
	encoded, err := id.MarshalBinary()
	if err != nil {
		return err
	}

	writeLine(w, "  Name: %s", vf.Name())
	writeLine(w, "  Path: %s", vf.PathName())
	writeLine(w, "   URL: %s", url)
	writeLine(w, "  Kind: %s", vf.Handler().Kind())
	writeLine(w, "  Leaf: %t", leaf)
	writeLine(w, "  Size: %s", humanize.IBytes(uint64(size)))
	writeLine(w, "Modify: %s", modified.Format(time.RFC3339))
	writeLine(w, "    ID: %s", hex.EncodeToString(encoded))
	return nil
}

func (sc *StatCommand) GetFlags() *cmd.CommandFlagSet {
	return nil
}
