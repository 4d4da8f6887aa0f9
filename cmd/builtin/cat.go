package builtin

import (
	"context"
	"io"

	"github.com/mwantia/vfs/v2/cmd"
)

type CatCommand struct {
}

func (cc *CatCommand) Name() string {
	return "cat"
}

func (cc *CatCommand) Description() string {
	return "Write the content of files to the output"
}

func (cc *CatCommand) Usage() string {
	return "cat <uri>..."
}

func (cc *CatCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, writer io.Writer) (int, error) {
	if err := requireArgs(args, 1, cc.Usage()); err != nil {
		return 2, err
	}

	for _, uri := range args.Args {
		if err := cc.copy(ctx, api, uri, writer); err != nil {
			return 1, err
		}
	}
	return 0, nil
}

func (cc *CatCommand) copy(ctx context.Context, api cmd.API, uri string, writer io.Writer) error {
	vf, err := api.GetFile(ctx, uri)
	if err != nil {
		return err
	}
	defer vf.Close()

	rc, err := vf.Open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(writer, rc)
	return err
}

func (cc *CatCommand) GetFlags() *cmd.CommandFlagSet {
	return nil
}
