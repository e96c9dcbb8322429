package http

import (
	"github.com/labstack/echo/v4"

	"github.com/nerdwiki/nerdwiki-api/internal/infrastructure/http/handlers"
)

// RegisterHealthRoutes mounts the liveness and readiness probes on e. Probes
// never require authentication.
func RegisterHealthRoutes(e *echo.Echo, checks map[string]handlers.Pinger) {
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(checks)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthDepsHandler.Readiness)
}
