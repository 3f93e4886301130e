// Package server exposes the triage engine over HTTP.
package server

import (
	"context"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/github"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/pkg/models"
)

// Service is the engine surface the API serves
type Service interface {
	Analyze(ctx context.Context, project string, number int, force bool) (*models.AnalysisResult, error)
	StartBatch(project string, numbers []int) (string, error)
	BatchStatus(id string) (models.BatchStatus, bool)
	CancelBatch(id string) (models.BatchStatus, bool)
	CategoryStats(ctx context.Context, project string) (*models.CategoryStats, error)
	SemanticSearch(ctx context.Context, project, text string, k int, minSimilarity float64) ([]models.SearchResult, error)
	Respond(ctx context.Context, project string, number, index int) (*github.ApplyResult, error)
	History(ctx context.Context, project string, number int) ([]*models.TriageAnalysis, error)
}

// Server is the HTTP front of the engine
type Server struct {
	app *fiber.App
	cfg *config.ServerConfig
	log logger.Logger
}

// New builds the fiber app and registers every route
func New(cfg *config.ServerConfig, svc Service, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "gh-triage",
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          2 * time.Minute,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(recover.New())
	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	h := &handler{svc: svc}
	api := app.Group("/api/triage/v1")

	api.Get("/health", h.health)
	api.Post("/analyze", perMinute(cfg.AnalyzePerMinute), h.analyze)
	api.Post("/batch", perMinute(cfg.BatchPerMinute), h.startBatch)
	api.Get("/batch/:id", h.batchStatus)
	api.Delete("/batch/:id", h.cancelBatch)
	api.Get("/stats", h.stats)
	api.Get("/search", h.search)
	api.Get("/history", h.history)
	api.Post("/respond", h.respond)

	return &Server{app: app, cfg: cfg, log: log}
}

// perMinute limits a route per client IP
func perMinute(limit int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded, retry later")
		},
	})
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until Shutdown
func (s *Server) Run() error {
	s.log.Info("server", "Server is running", map[string]interface{}{"addr": s.cfg.Addr})
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
