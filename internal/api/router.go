package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/nerdwiki/nerdwiki-api/docs"
	"github.com/nerdwiki/nerdwiki-api/internal/api/handler"
	"github.com/nerdwiki/nerdwiki-api/internal/api/metrics"
	"github.com/nerdwiki/nerdwiki-api/internal/api/middleware"
	"github.com/nerdwiki/nerdwiki-api/internal/core/domain"
	"github.com/nerdwiki/nerdwiki-api/internal/core/ports"
	infrahttp "github.com/nerdwiki/nerdwiki-api/internal/infrastructure/http"
	"github.com/nerdwiki/nerdwiki-api/internal/infrastructure/http/handlers"
)

// Dependencies carries everything the router needs. Registerer and Gatherer
// default to the global Prometheus registry when nil.
type Dependencies struct {
	Auth     ports.AuthService
	Roles    ports.RoleService
	Verifier ports.TokenVerifier
	Cookie   handler.CookieOptions
	Checks   map[string]handlers.Pinger
	Log      zerolog.Logger

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	if err := metrics.Register(registerer); err != nil {
		deps.Log.Warn().Err(err).Msg("auth metrics not registered")
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "nerdwiki",
		Subsystem:  "http",
		Registerer: registerer,
	}))

	// --- Operational endpoints ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	infrahttp.RegisterHealthRoutes(e, deps.Checks)

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.Auth, deps.Cookie)
	roleHandler := handler.NewRoleHandler(deps.Roles)

	auth := e.Group("/api/auth", middleware.Authenticate(deps.Verifier))
	auth.GET("", authHandler.Status)
	auth.GET("/", authHandler.Status)
	auth.POST("/signup", authHandler.SignUp)
	auth.POST("/signin", authHandler.SignIn)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/signout", authHandler.SignOut, middleware.RequireAuth())

	admin := middleware.RBAC(domain.RoleAdmin)
	auth.POST("/role", roleHandler.AddRole, admin)
	auth.POST("/assign-role", roleHandler.AssignRole, admin)

	return e
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
