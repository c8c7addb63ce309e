package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "fabrica",
		Usage: "Generation pipeline with searchable prompt memory",
		Commands: []*cli.Command{
			generateCommand(),
			sessionCommand(),
			searchCommand(),
			listCommand(),
			showCommand(),
			statusCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
