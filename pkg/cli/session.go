package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/fabrica/pkg/usecase/gallery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func sessionCommand() *cli.Command {
	var (
		cfg          config
		similarLimit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "similar",
			Usage:       "Number of similar past generations to show after each prompt",
			Value:       3,
			Sources:     cli.EnvVars("FABRICA_SESSION_SIMILAR"),
			Destination: &similarLimit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, routingFlags(&cfg)...)
	flags = append(flags, storageFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "session",
		Usage: "Interactive generation session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			p, err := newPipeline(ctx, &cfg)
			if err != nil {
				return err
			}
			defer p.close()

			gal := gallery.New(p.store, p.llm)

			rl, err := readline.New("fabrica> ")
			if err != nil {
				return goerr.Wrap(err, "failed to start prompt reader")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Session started as %s. Type 'exit' to quit.\n", cfg.userID)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read prompt")
				}

				prompt := strings.TrimSpace(line)
				if prompt == "" {
					continue
				}
				if prompt == "exit" || prompt == "quit" {
					break
				}

				out, err := runWithSpinner(ctx, p.uc, prompt)
				if err != nil {
					fmt.Fprintf(w, "error: %s\n", err)
					continue
				}

				printOutput(c, out)
				printSimilar(ctx, c, gal, out.Prompt, out.RecordID, int(similarLimit))
				fmt.Fprintf(w, "\n")
			}

			fmt.Fprintf(w, "Session closed\n")
			return nil
		},
	}
}
