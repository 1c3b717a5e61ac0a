// Package main provides the Workflow Manager API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/workflow-manager/pkg/cmd"
	"github.com/dukex/workflow-manager/pkg/metrics"
	"github.com/dukex/workflow-manager/pkg/persistence"
	"github.com/dukex/workflow-manager/pkg/services"
	"github.com/dukex/workflow-manager/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	handlers *web.APIHandlers
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	m *metrics.Metrics,
) (*API, error) {
	workflows, err := services.NewWorkflows(persistence)
	if err != nil {
		return nil, err
	}

	handlers := web.NewAPIHandlers(
		workflows,
		services.NewInstances(persistence),
		services.NewPayloads(persistence),
		services.NewAcknowledgements(persistence, logger),
		services.NewExecutionStats(persistence, logger, m),
	)

	return &API{
		logger:   logger,
		handlers: handlers,
	}, nil
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/metrics", cmd.MetricsHandler())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Workflow Manager API")
	})

	a.handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
