package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/eduadmin/student-lifecycle/docs"
	"github.com/eduadmin/student-lifecycle/internal/api/handler"
	"github.com/eduadmin/student-lifecycle/internal/api/middleware"
	"github.com/eduadmin/student-lifecycle/internal/core/domain"
	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Log          zerolog.Logger
	Verifier     ports.TokenVerifier
	Auth         ports.AuthService
	Provisioning ports.ProvisioningService
	Emails       ports.EmailChangeService
	Deletions    ports.DeletionService
	HealthChecks map[string]handler.HealthCheck
	// BodyLimit caps request bodies, e.g. "2M".
	BodyLimit string
	// Registry receives the HTTP metrics; nil uses the default registry.
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
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(metricsConfig(deps.Registry)))
	if deps.BodyLimit != "" {
		e.Use(echomiddleware.BodyLimit(deps.BodyLimit))
	}

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	studentHandler := handler.NewStudentHandler(deps.Provisioning, deps.Emails, deps.Deletions, deps.Log)
	healthHandler := handler.NewHealthHandler(deps.HealthChecks)

	// --- Operational routes (no auth required) ---
	e.GET("/health", healthHandler.Liveness)        // liveness: is the process alive?
	e.GET("/health/ready", healthHandler.Readiness) // readiness: are dependencies up?
	e.GET("/metrics", metricsHandler(deps.Registry))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Auth routes ---
	e.POST("/auth/login", authHandler.Login)

	// --- Student lifecycle (admin or teacher bearer token) ---
	guard := []echo.MiddlewareFunc{
		middleware.Auth(deps.Verifier),
		middleware.RBAC(domain.RoleAdmin, domain.RoleTeacher),
	}
	e.POST("/bulkCreateUsers", studentHandler.BulkCreateUsers, guard...)
	e.POST("/updateStudentEmail", studentHandler.UpdateStudentEmail, guard...)
	e.POST("/deleteStudentCompletely", studentHandler.DeleteStudentCompletely, guard...)

	return e
}

func metricsConfig(reg *prometheus.Registry) echoprometheus.MiddlewareConfig {
	cfg := echoprometheus.MiddlewareConfig{Subsystem: "student_lifecycle"}
	if reg != nil {
		cfg.Registerer = reg
	}
	return cfg
}

func metricsHandler(reg *prometheus.Registry) echo.HandlerFunc {
	if reg == nil {
		return echoprometheus.NewHandler()
	}
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg})
}

// requestLogger logs one structured line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil || v.Status >= 500 {
				evt = log.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
