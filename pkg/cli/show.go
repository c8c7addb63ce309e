package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var (
		cfg           config
		recordID      string
		withEmbedding bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "record-id",
			Aliases:     []string{"i"},
			Usage:       "Record ID to display",
			Sources:     cli.EnvVars("FABRICA_RECORD_ID"),
			Destination: &recordID,
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "with-embedding",
			Usage:       "Include the embedding vector in the output",
			Destination: &withEmbedding,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Display one remembered generation",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			store, repo, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			record, err := store.Get(ctx, model.RecordID(recordID))
			if err != nil {
				return err
			}

			if !withEmbedding {
				record.Embedding = nil
			}

			data, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to marshal record")
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", data)
			return nil
		},
	}
}
