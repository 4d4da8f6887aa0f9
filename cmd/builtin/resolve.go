package builtin

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	vfs "github.com/mwantia/vfs/v2"
	"github.com/mwantia/vfs/v2/cmd"
)

type ResolveCommand struct {
}

func (rc *ResolveCommand) Name() string {
	return "resolve"
}

func (rc *ResolveCommand) Description() string {
	return "Resolve an identity printed by stat"
}

func (rc *ResolveCommand) Usage() string {
	return "resolve <id>"
}

func (rc *ResolveCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := requireArgs(args, 1, rc.Usage()); err != nil {
		return 2, err
	}

	encoded, err := hex.DecodeString(args.Args[0])
	if err != nil {
		return 2, fmt.Errorf("invalid identity: %w", err)
	}

	var id vfs.Identity
	if err := id.UnmarshalBinary(encoded); err != nil {
		return 2, fmt.Errorf("invalid identity: %w", err)
	}

	vf, err := api.Resolve(ctx, id)
	if err != nil {
		return 1, err
	}
	defer vf.Close()

	if err := writeStat(ctx, writer, vf); err != nil {
		return 1, err
	}
	return 0, nil
}

func (rc *ResolveCommand) GetFlags() *cmd.CommandFlagSet {
	return nil
}
