package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/usecase/gallery"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg   config
		query string
		limit int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Text to search past prompts for",
			Sources:     cli.EnvVars("FABRICA_QUERY"),
			Destination: &query,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of results",
			Value:       5,
			Sources:     cli.EnvVars("FABRICA_SEARCH_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Find past generations with prompts similar to a query",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			store, repo, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			llm, err := cfg.newLLM(ctx)
			if err != nil {
				return err
			}

			hits, err := gallery.New(store, llm).Search(ctx, query, int(limit))
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(hits) == 0 {
				fmt.Fprintf(w, "No similar generations found\n")
				return nil
			}

			fmt.Fprintf(w, "Found %d similar generations:\n\n", len(hits))
			for i, hit := range hits {
				fmt.Fprintf(w, "%d. %s (score %.3f)\n", i+1, hit.ID, hit.Score)
				fmt.Fprintf(w, "   Prompt: %s\n", hit.Prompt)
				if hit.ImagePath != "" {
					fmt.Fprintf(w, "   Image:  %s\n", hit.ImagePath)
				}
				if hit.ModelPath != "" {
					fmt.Fprintf(w, "   Model:  %s\n", hit.ModelPath)
				}
				fmt.Fprintf(w, "\n")
			}

			return nil
		},
	}
}

// printSimilar shows the closest past generations for a prompt, excluding the
// record the prompt itself just produced.
func printSimilar(ctx context.Context, c *cli.Command, gal *gallery.UseCase, query string, exclude model.RecordID, limit int) {
	if limit <= 0 {
		return
	}

	w := c.Root().Writer
	hits, err := gal.Search(ctx, query, limit+1)
	if err != nil {
		fmt.Fprintf(w, "error: %s\n", err)
		return
	}

	shown := 0
	for _, hit := range hits {
		if hit.ID == exclude {
			continue
		}
		if shown == 0 {
			fmt.Fprintf(w, "Similar past generations:\n")
		}
		fmt.Fprintf(w, "  %.3f  %s  %s\n", hit.Score, hit.ID, hit.Prompt)
		shown++
		if shown >= limit {
			break
		}
	}
}
