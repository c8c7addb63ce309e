package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/fabrica/pkg/adapter"
	"github.com/m-mizutani/fabrica/pkg/service/memory"
	"github.com/m-mizutani/fabrica/pkg/usecase/generate"
	"github.com/urfave/cli/v3"
)

func generateCommand() *cli.Command {
	var (
		cfg    config
		prompt string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "Prompt describing what to generate",
			Sources:     cli.EnvVars("FABRICA_PROMPT"),
			Destination: &prompt,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, routingFlags(&cfg)...)
	flags = append(flags, storageFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "generate",
		Usage: "Run the generation pipeline for a prompt",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			p, err := newPipeline(ctx, &cfg)
			if err != nil {
				return err
			}
			defer p.close()

			out, err := runWithSpinner(ctx, p.uc, prompt)
			if err != nil {
				return err
			}

			printOutput(c, out)
			return nil
		},
	}
}

// pipeline bundles the wired generation dependencies so that interactive
// commands can reuse the same memory store for both writing and searching.
type pipeline struct {
	uc    *generate.UseCase
	store *memory.Store
	llm   adapter.LLM
	close func()
}

func newPipeline(ctx context.Context, cfg *config) (*pipeline, error) {
	client, err := cfg.newClient()
	if err != nil {
		return nil, err
	}

	llm, err := cfg.newLLM(ctx)
	if err != nil {
		return nil, err
	}

	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, err
	}

	store, repo, err := cfg.newMemory(ctx)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		uc:    generate.New(client, llm, store, storage),
		store: store,
		llm:   llm,
		close: func() { _ = repo.Close() },
	}, nil
}

func runWithSpinner(ctx context.Context, uc *generate.UseCase, prompt string) (*generate.Output, error) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = " generating..."
	sp.Start()
	defer sp.Stop()

	return uc.Run(ctx, generate.Input{Prompt: prompt})
}

func printOutput(c *cli.Command, out *generate.Output) {
	w := c.Root().Writer
	fmt.Fprintf(w, "Record:   %s\n", out.RecordID)
	fmt.Fprintf(w, "Prompt:   %s\n", out.Prompt)
	fmt.Fprintf(w, "Expanded: %s\n", out.ExpandedPrompt)
	if out.ImagePath != "" {
		fmt.Fprintf(w, "Image:    %s\n", out.ImagePath)
	}
	if out.ModelPath != "" {
		fmt.Fprintf(w, "Model:    %s\n", out.ModelPath)
	}
	for _, id := range out.Skipped {
		fmt.Fprintf(w, "Skipped:  %s (service unavailable)\n", id)
	}
}
