package cli

import (
	"context"
	"fmt"

	routing "github.com/m-mizutani/fabrica/pkg/config"
	"github.com/m-mizutani/fabrica/pkg/service/remote"
	"github.com/urfave/cli/v3"
)

func statusCommand() *cli.Command {
	var (
		cfg   config
		probe bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "probe",
			Usage:       "Send a probe call to each service instead of only printing the routing",
			Sources:     cli.EnvVars("FABRICA_STATUS_PROBE"),
			Destination: &probe,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, routingFlags(&cfg)...)

	return &cli.Command{
		Name:  "status",
		Usage: "Show the configured services for a user and their availability",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.loggerContext(ctx)

			routes, err := routing.Load(cfg.routingPath)
			if err != nil {
				return err
			}

			endpoints, err := routes.EndpointsFor(cfg.userID)
			if err != nil {
				return err
			}

			rcfg := routes.ClientConfig(cfg.userID)
			if probe {
				// A status probe should answer quickly, not burn the
				// full retry budget per service.
				rcfg.MaxRetries = 0
			}

			transport := remote.NewDispatchTransport(cfg.callTimeout)
			client := remote.New(cfg.userID, endpoints, transport, rcfg)

			w := c.Root().Writer
			fmt.Fprintf(w, "Services for %s (require_all=%v):\n\n", cfg.userID, rcfg.RequireAll)

			for _, ep := range client.Services() {
				state := "configured"
				if probe {
					if _, err := client.Call(ctx, ep.ID, map[string]any{"probe": true}); err != nil {
						state = fmt.Sprintf("unavailable (%s)", err)
					} else {
						state = "available"
					}
				}
				fmt.Fprintf(w, "  %-16s %-40s %s\n", ep.ID, ep.Address, state)
			}

			if probe {
				fmt.Fprintf(w, "\nAvailable: %v\n", client.AvailableServices())
			}

			return nil
		},
	}
}
