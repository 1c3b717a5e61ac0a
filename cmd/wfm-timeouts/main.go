// Package main runs the task timeout monitor.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/workflow-manager/pkg/cmd"
	"github.com/dukex/workflow-manager/pkg/log"
	"github.com/dukex/workflow-manager/pkg/timeouts"
	cli "github.com/urfave/cli/v3"
)

const (
	serviceName        = "wfm-timeouts"
	defaultMetricsPort = 9093
	stopTimeout        = 30 * time.Second
)

func main() {
	cmd := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Report tasks that exceeded their timeout",
		Flags: []cli.Flag{
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
				Name:    "timeouts-schedule",
				Usage:   "Cron expression for the timeout check",
				Value:   timeouts.DefaultSchedule,
				Sources: cli.EnvVars("TIMEOUTS_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "task-timeout",
				Usage:   "Timeout of tasks whose definition sets none",
				Value:   timeouts.DefaultTaskTimeout,
				Sources: cli.EnvVars("TASK_TIMEOUT"),
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

			logger := log.WithModule(serviceName)

			logger.InfoContext(ctx, "Initializing timeout monitor")

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

			monitor, err := timeouts.NewMonitor(
				persistence,
				eventBus,
				logger,
				command.String("timeouts-schedule"),
				command.Duration("task-timeout"),
			)
			if err != nil {
				return err
			}

			metricsServer := cmd.ServeMetrics(ctx, logger, command.Int("port"))
			defer func() {
				err := metricsServer.Shutdown()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to stop metrics server", "error", err)
				}
			}()

			err = monitor.Start(ctx)
			if err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case <-sigChan:
			case <-ctx.Done():
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()

			return monitor.Stop(stopCtx)
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
