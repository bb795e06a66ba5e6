package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"jobpilot/internal/api/handlers"
	"jobpilot/internal/api/middleware"
	"jobpilot/internal/config"
	"jobpilot/internal/logging/types"
	"jobpilot/internal/metrics"
)

// Deps are the services the routes expose
type Deps struct {
	Queue    handlers.QueueService
	Rates    handlers.RateStats
	Accounts handlers.AccountReader
	Logs     handlers.LogReader
	Listings handlers.ListingReader
	Scraper  handlers.ScrapeTrigger
	Tasks    handlers.TaskReader
	Checks   []handlers.ReadinessCheck
	Logger   types.Logger
}

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, cfg *config.Config, d Deps) {
	logger := d.Logger
	if logger == nil {
		logger = types.NewNopLogger()
	}
	logger = logger.WithField("component", "api")

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(middleware.RequestValidation())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.CORSConfig(cfg.Server.AllowedOrigins))
	if cfg.Metrics.Enabled {
		e.Use(metrics.EchoMiddleware())
		e.GET(cfg.Metrics.Path, echo.WrapHandler(metrics.Handler()))
	}

	// Health check routes
	health := e.Group("/health")
	{
		health.GET("", handlers.HealthHandler)
		health.GET("/ready", handlers.ReadinessHandler(d.Checks...))
		health.GET("/live", handlers.LivenessHandler)
	}

	// API v1 routes
	v1 := e.Group("/api/v1", middleware.RequireUser())
	{
		queue := v1.Group("/queue")
		{
			queue.GET("", handlers.ListQueueHandler(d.Queue))
			queue.POST("", handlers.EnqueueHandler(d.Queue, logger))
			queue.POST("/:id/skip", handlers.SkipHandler(d.Queue))
			queue.PUT("/:id/priority", handlers.PriorityHandler(d.Queue))
			queue.DELETE("/:id", handlers.RemoveHandler(d.Queue))
		}

		v1.GET("/status", handlers.StatusHandler(d.Queue, d.Rates, d.Accounts))
		v1.GET("/logs", handlers.ListLogsHandler(d.Logs))
		v1.GET("/listings", handlers.ListListingsHandler(d.Listings))

		v1.POST("/automation/scrape", handlers.TriggerScrapeHandler(d.Scraper, logger))
		v1.GET("/tasks/:id", handlers.TaskStatusHandler(d.Tasks))
	}

	// Root route
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "jobpilot",
			"version": handlers.Version,
			"status":  "running",
		})
	})
}
