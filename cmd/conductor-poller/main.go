package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/0rca-network/conductor/pkg/agentclient"
	"github.com/0rca-network/conductor/pkg/catalog"
	"github.com/0rca-network/conductor/pkg/cmd"
	"github.com/0rca-network/conductor/pkg/log"
	"github.com/0rca-network/conductor/pkg/orchestrator"
	"github.com/0rca-network/conductor/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "conductor-poller",
		Usage:                 "Poll in-flight workflow steps and advance finished workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "poller-id",
				Aliases: []string{"id"},
				Usage:   "Custom poller ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("POLLER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres:// or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "agent-scheme",
				Usage:   "URL scheme for agent service endpoints",
				Value:   "https",
				Sources: cli.EnvVars("AGENT_SCHEME"),
			},
			&cli.StringFlag{
				Name:    "agent-domain",
				Usage:   "Base domain agent subdomains are resolved against",
				Value:   "0rca.live",
				Sources: cli.EnvVars("AGENT_DOMAIN"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Interval between poll sweeps",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "max-attempts",
				Usage:   "Poll attempts per step before it is failed as timed out",
				Value:   30,
				Sources: cli.EnvVars("POLL_MAX_ATTEMPTS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			pollerID := command.String("poller-id")
			if pollerID == "" {
				pollerID = fmt.Sprintf("poller-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("conductor-poller").With("poller_id", pollerID)

			logger.InfoContext(ctx, "Initializing Conductor poller")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "conductor-poller", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			catalogReader := catalog.NewReader(persistence.AgentRepository(), logger)

			agentCaller := agentclient.NewClient(agentclient.Config{
				Scheme: command.String("agent-scheme"),
				Domain: command.String("agent-domain"),
			}, logger)

			serviceOpts := []orchestrator.Option{
				orchestrator.WithEventPublisher(eventBus),
			}

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "conductor-poller")
				if err != nil {
					return err
				}

				serviceOpts = append(serviceOpts, orchestrator.WithTracer(tracer))
			}

			// The poller never plans, so no plan generator is wired.
			service := orchestrator.NewService(
				persistence,
				catalogReader,
				nil,
				agentCaller,
				logger,
				serviceOpts...,
			)

			poller := NewPoller(
				service,
				command.Duration("poll-interval"),
				command.Int("max-attempts"),
				logger,
			)

			poller.Start(ctx)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
