package main

import (
	"context"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/0rca-network/conductor/pkg/agentclient"
	"github.com/0rca-network/conductor/pkg/catalog"
	"github.com/0rca-network/conductor/pkg/cmd"
	"github.com/0rca-network/conductor/pkg/llm"
	"github.com/0rca-network/conductor/pkg/log"
	"github.com/0rca-network/conductor/pkg/orchestrator"
	"github.com/0rca-network/conductor/pkg/otelhelper"
	"github.com/0rca-network/conductor/pkg/planner"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "conductor-api",
		Usage:                 "Plan and orchestrate multi-agent workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Name:     "openai-api-key",
				Usage:    "API key for the planning model",
				Required: true,
				Sources:  cli.EnvVars("OPENAI_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "openai-model",
				Usage:   "Planning model identifier",
				Value:   "gpt-4o",
				Sources: cli.EnvVars("OPENAI_MODEL"),
			},
			&cli.StringFlag{
				Name:    "openai-base-url",
				Usage:   "Base URL of the OpenAI-compatible completion API",
				Sources: cli.EnvVars("OPENAI_BASE_URL"),
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
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the agent catalog cache (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
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

			logger.InfoContext(ctx, "Initializing Conductor API")

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

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "conductor-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			completer, err := llm.NewClient(llm.Config{
				APIKey:  command.String("openai-api-key"),
				BaseURL: command.String("openai-base-url"),
				Model:   command.String("openai-model"),
			})
			if err != nil {
				return err
			}

			catalogOpts := []catalog.Option{}

			if redisURL := command.String("redis-url"); redisURL != "" {
				redisOpts, err := redis.ParseURL(redisURL)
				if err != nil {
					return err
				}

				catalogOpts = append(catalogOpts,
					catalog.WithCache(redis.NewClient(redisOpts), 30*time.Second))
			}

			catalogReader := catalog.NewReader(persistence.AgentRepository(), logger, catalogOpts...)

			agentCaller := agentclient.NewClient(agentclient.Config{
				Scheme: command.String("agent-scheme"),
				Domain: command.String("agent-domain"),
			}, logger)

			serviceOpts := []orchestrator.Option{
				orchestrator.WithEventPublisher(eventBus),
			}

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "conductor-api")
				if err != nil {
					return err
				}

				serviceOpts = append(serviceOpts, orchestrator.WithTracer(tracer))
			}

			service := orchestrator.NewService(
				persistence,
				catalogReader,
				planner.NewPlanner(completer, logger),
				agentCaller,
				logger,
				serviceOpts...,
			)

			api := NewAPI(logger, service)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
