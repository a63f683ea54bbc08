package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/skilltest-api/internal/config"
	"github.com/noah-isme/skilltest-api/internal/handler"
	"github.com/noah-isme/skilltest-api/internal/middleware"
	"github.com/noah-isme/skilltest-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PublicTestHandler    *handler.PublicTestHandler
	AttemptHandler       *handler.AttemptHandler
	AttemptStreamHandler *handler.AttemptStreamHandler
	TestHandler          *handler.TestHandler
	AIJobHandler         *handler.AIJobHandler
	NotificationHandler  *handler.NotificationHandler
	HealthProbes         map[string]handler.HealthProbe
	// StaffGuard overrides the JWT and role chain, mainly for tests.
	StaffGuard []fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())
	if strings.TrimSpace(cfg.UploadDir) != "" && !cfg.Cloudinary.Enabled() {
		app.Static("/uploads", cfg.UploadDir)
	}

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Candidate endpoints; the access token is the credential
	if deps.PublicTestHandler != nil {
		public := api.Group("/public/tests/:token", middleware.RateLimit("public_tests", cfg.PublicRateLimit, time.Minute))
		deps.PublicTestHandler.Register(public)
	}

	guard := deps.StaffGuard
	if len(guard) == 0 {
		guard = middleware.WithAuth(middleware.AuthOptions{Secret: cfg.JWTSecret})
	}
	staff := api.Group("/staff", guard...)

	if deps.TestHandler != nil {
		deps.TestHandler.Register(staff.Group("/tests"))
	}

	if deps.AttemptHandler != nil {
		deps.AttemptHandler.RegisterInvites(staff.Group("/test-invites"))

		attempts := staff.Group("/test-attempts")
		if deps.AttemptStreamHandler != nil {
			deps.AttemptStreamHandler.Register(attempts)
		}
		deps.AttemptHandler.Register(attempts)
	}

	if deps.AIJobHandler != nil {
		deps.AIJobHandler.Register(staff.Group("/ai-jobs"))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(staff.Group("/notifications"))
	}
}
