package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/observability"
)

const (
	buildResultRateLimit  = 120
	buildResultRateWindow = time.Minute
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	BuildResultHandler  *handler.BuildResultHandler
	ResultHandler       *handler.ResultHandler
	TestCaseHandler     *handler.TestCaseHandler
	NotificationHandler *handler.NotificationHandler
	HealthProbes        []handler.HealthProbe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	grading := app.Group("/api/v2/grading", jwtMiddleware)
	staffOrAgent := append(middleware.StaffRoles(), middleware.RoleBuildAgent)

	// CI agents report builds; staff may replay them by hand.
	if deps.BuildResultHandler != nil {
		webhook := grading.Group("/build-results",
			middleware.RequireRole(staffOrAgent...),
			middleware.RateLimit("build-results", buildResultRateLimit, buildResultRateWindow),
		)
		deps.BuildResultHandler.Register(webhook)
	}

	if deps.ResultHandler != nil {
		deps.ResultHandler.Register(grading.Group("/participations", middleware.RequireRole(staffOrAgent...)))
	}

	if deps.TestCaseHandler != nil {
		deps.TestCaseHandler.Register(grading.Group("/exercises", middleware.RequireRole(middleware.StaffRoles()...)))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(grading.Group("/notifications"))
	}
}
