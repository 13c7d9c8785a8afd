package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/auth-service/docs"
	"github.com/99minutos/auth-service/internal/api/handler"
	"github.com/99minutos/auth-service/internal/api/middleware"
	"github.com/99minutos/auth-service/internal/core/ports"
)

const metricsSubsystem = "auth_http"

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	AuthService ports.AuthService
	Tokens      ports.TokenIssuer
	// Checks are the readiness probes keyed by dependency name.
	Checks map[string]handler.Check
	Log    zerolog.Logger
	// Now defaults to time.Now; token expiry is evaluated against it.
	Now func() time.Time
	// Registry receives HTTP metrics and backs /metrics. Nil selects the
	// default Prometheus registry, which also holds the service metrics.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLogger(deps.Log))

	metricsConfig := echoprometheus.MiddlewareConfig{Subsystem: metricsSubsystem}
	handlerConfig := echoprometheus.HandlerConfig{}
	if deps.Registry != nil {
		metricsConfig.Registerer = deps.Registry
		handlerConfig.Gatherer = deps.Registry
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(metricsConfig))

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.AuthService)
	requireAuth := middleware.Auth(deps.Tokens, deps.Now)

	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", authHandler.Me, requireAuth)
	auth.GET("/roles", authHandler.Roles, requireAuth)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness

	// --- Operations ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(handlerConfig))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
