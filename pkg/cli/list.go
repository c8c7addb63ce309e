package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Number of records to skip",
			Sources:     cli.EnvVars("FABRICA_LIST_OFFSET"),
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of records to display",
			Value:       20,
			Sources:     cli.EnvVars("FABRICA_LIST_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List remembered generations, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			store, repo, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			records, err := store.List(ctx, int(offset), int(limit))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(records) == 0 {
				fmt.Fprintf(w, "No generations recorded\n")
				return nil
			}

			for _, record := range records {
				fmt.Fprintf(w, "%s  %s  %s\n",
					record.ID,
					record.CreatedAt.Format("2006-01-02 15:04:05"),
					record.Prompt,
				)
			}

			return nil
		},
	}
}
