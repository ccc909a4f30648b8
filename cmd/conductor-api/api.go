// Package main provides the Conductor API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/0rca-network/conductor/pkg/orchestrator"
	"github.com/0rca-network/conductor/pkg/web"
)

type API struct {
	logger       *slog.Logger
	orchestrator *orchestrator.Service
	validate     *validator.Validate
}

func NewAPI(logger *slog.Logger, service *orchestrator.Service) *API {
	return &API{
		logger:       logger,
		orchestrator: service,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.orchestrator, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Conductor API")
	})

	w := app.Group("/workflows")
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/approve", handlers.ApproveWorkflow)
	w.Post("/:id/start", handlers.StartWorkflow)
	w.Post("/:id/dispatch", handlers.DispatchStep)
	w.Post("/:id/advance", handlers.AdvanceWorkflow)

	s := app.Group("/steps")
	s.Post("/:id/payment", handlers.SubmitPayment)
	s.Post("/:id/poll", handlers.PollStep)
	s.Post("/:id/cancel", handlers.CancelStep)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
