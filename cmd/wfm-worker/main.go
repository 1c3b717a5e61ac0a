package main

import (
	"context"
	"os"

	"github.com/dukex/workflow-manager/pkg/cmd"
	"github.com/dukex/workflow-manager/pkg/idempotency"
	"github.com/dukex/workflow-manager/pkg/log"
	"github.com/dukex/workflow-manager/pkg/metrics"
	"github.com/dukex/workflow-manager/pkg/services"
	"github.com/dukex/workflow-manager/pkg/workflow"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/urfave/cli/v3"
)

const (
	serviceName        = "wfm-worker"
	defaultMetricsPort = 9092
)

func main() {
	cmd := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Consume workflow and task events and reconcile workflow instances",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the duplicate request guard (disabled when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port serving /metrics",
				Value:   defaultMetricsPort,
				Sources: cli.EnvVars("PORT"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule(serviceName).With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Workflow Manager worker")

			shutdownTracing := cmd.NewTracing(ctx, logger, command.Bool("otel-enabled"), serviceName)
			defer func() {
				err := shutdownTracing(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), serviceName, logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"), command.String("database-name"))
			defer func() {
				err := persistence.Close(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			m := metrics.New(prometheus.DefaultRegisterer)
			opts := []workflow.Option{
				workflow.WithStatsRecorder(services.NewExecutionStats(persistence, logger, m)),
				workflow.WithMetrics(m),
			}

			if client := cmd.NewRedis(ctx, logger, command.String("redis-url")); client != nil {
				defer func() {
					err := client.Close()
					if err != nil {
						logger.ErrorContext(ctx, "Failed to close redis", "error", err)
					}
				}()

				opts = append(opts, workflow.WithRequestGuard(idempotency.NewRedisGuard(client)))
			}

			metricsServer := cmd.ServeMetrics(ctx, logger, command.Int("port"))
			defer func() {
				err := metricsServer.Shutdown()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to stop metrics server", "error", err)
				}
			}()

			worker := NewWorkerManager(
				workerID,
				workflow.NewReconciler(persistence, eventBus, logger, opts...),
				eventBus,
				logger,
			)

			err := worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)

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
