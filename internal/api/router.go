package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openlms/provisioner/internal/api/handler"
	"github.com/openlms/provisioner/internal/core/ports"
)

// Deps collects everything the router wires into handlers.
type Deps struct {
	Coordinator handler.BatchCoordinator
	Directory   ports.Directory
	Redis       *redis.Client // nil when no claim registry is configured
	RoleID      int
	Log         zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("provisioner"))

	// --- Import surface ---
	importHandler := handler.NewImportHandler(d.Coordinator, d.Directory, d.RoleID)
	e.POST("/api/import/preview", importHandler.Preview)
	e.POST("/api/import/start", importHandler.Start)
	e.GET("/api/import/stream/:id", importHandler.Stream)
	e.GET("/api/import/result/:id", importHandler.Result)
	e.POST("/api/import/download", importHandler.Download)
	e.GET("/api/ping", importHandler.Ping)

	// --- Health probes ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(d.Directory, d.Redis)
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", readinessHandler.Readiness)

	// --- Metrics ---
	e.GET("/metrics", echoprometheus.NewHandler())

	return e
}
