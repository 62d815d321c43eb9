package web

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/cadencehq/cadence/pkg/campaign"
	"github.com/cadencehq/cadence/pkg/eventbus"
	"github.com/cadencehq/cadence/pkg/persistence"
	"github.com/cadencehq/cadence/pkg/sequence"
)

// NewApp wires the full HTTP application: trigger ingestion, sequence and
// campaign reads, and health endpoints.
func NewApp(
	slogger *slog.Logger,
	store persistence.Persistence,
	registry *campaign.Registry,
	eventBus eventbus.EventBus,
) *fiber.App {
	repo := store.SequenceRepository()
	sequenceService := sequence.NewService(slogger, registry, repo, eventBus)

	handlers := NewAPIHandlers(
		sequenceService,
		repo,
		registry,
		validator.New(validator.WithRequiredStructEnabled()),
		store.HealthCheck,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Cadence API")
	})

	app.Post("/trigger", handlers.PostTrigger)

	s := app.Group("/sequences")
	s.Get("/", handlers.ListSequences)
	s.Get("/:id", handlers.GetSequence)

	c := app.Group("/campaigns")
	c.Get("/", handlers.GetCampaigns)
	c.Get("/:id", handlers.GetCampaign)

	app.Get("/health", handlers.HealthCheck)

	return app
}
