package cmd

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/workflow-manager/pkg/otelhelper"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewTracing installs the OTLP tracer provider when enabled. The returned
// function flushes pending spans and is safe to call when tracing is off.
func NewTracing(ctx context.Context, logger *slog.Logger, enabled bool, serviceName string) func(context.Context) error {
	if !enabled {
		return func(context.Context) error { return nil }
	}

	_, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize tracer, continuing without tracing", "error", err)

		return func(context.Context) error { return nil }
	}

	logger.InfoContext(ctx, "Tracing enabled", "service", serviceName)

	return shutdown
}

// MetricsHandler exposes the default Prometheus registry.
func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// ServeMetrics serves /metrics on port in the background. Shut the returned
// app down on exit.
func ServeMetrics(ctx context.Context, logger *slog.Logger, port int) *fiber.App {
	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	go func() {
		err := app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
		if err != nil {
			logger.ErrorContext(ctx, "Metrics server stopped", "error", err)
		}
	}()

	return app
}
