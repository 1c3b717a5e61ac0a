package main

import (
	"context"
	"os"

	"github.com/dukex/workflow-manager/pkg/cmd"
	"github.com/dukex/workflow-manager/pkg/log"
	"github.com/dukex/workflow-manager/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/urfave/cli/v3"
)

const (
	serviceName = "wfm-api"
	defaultPort = 9091
)

func main() {
	cmd := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Manage workflows and query workflow instances, payloads and task statistics",
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
				Usage:    "Database connection URL (mongodb://... or file://dir)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "database-name",
				Usage:   "MongoDB database name",
				Value:   "WorkflowManager",
				Sources: cli.EnvVars("DATABASE_NAME"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
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

			logger := log.WithModule(serviceName)

			logger.InfoContext(ctx, "Initializing Workflow Manager API")

			shutdownTracing := cmd.NewTracing(ctx, logger, command.Bool("otel-enabled"), serviceName)
			defer func() {
				err := shutdownTracing(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"), command.String("database-name"))
			defer func() {
				err := persistence.Close(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			api, err := NewAPI(logger, persistence, metrics.New(prometheus.DefaultRegisterer))
			if err != nil {
				return err
			}

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
