// Package http provides the HTTP servers of the agent directory.
package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/agentdir/internal/service"
	"github.com/xiaot623/agentdir/internal/telemetry"
	"github.com/xiaot623/agentdir/internal/transport/http/internalapi"
	v1 "github.com/xiaot623/agentdir/internal/transport/http/v1"
)

// Options configures both servers.
type Options struct {
	Logger *slog.Logger
	// RequestTimeout bounds the context of every request; 0 disables it.
	RequestTimeout time.Duration
}

// NewExternalServer creates and configures the external-facing HTTP server.
// This server handles registration, discovery, negotiation and sessions.
func NewExternalServer(svc *service.Service, opts Options) *echo.Echo {
	e := newServer(opts)
	e.Use(middleware.CORS())

	v1.NewHandler(svc).RegisterRoutes(e)
	return e
}

// NewInternalServer creates and configures the internal-facing HTTP server.
// This server handles requests from verification and maintenance collaborators.
func NewInternalServer(svc *service.Service, opts Options) *echo.Echo {
	e := newServer(opts)

	internalapi.NewHandler(svc).RegisterRoutes(e)
	return e
}

func newServer(opts Options) *echo.Echo {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(correlationID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURIPath:   true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request",
				slog.String("correlation_id", v.RequestID),
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if opts.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeout(opts.RequestTimeout))
	}
	return e
}

// correlationID puts the request id into the request context so services
// can log against it.
func correlationID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = telemetry.NewCorrelationID()
				c.Response().Header().Set(echo.HeaderXRequestID, id)
			}
			req := c.Request()
			c.SetRequest(req.WithContext(telemetry.WithCorrelationID(req.Context(), id)))
			return next(c)
		}
	}
}

// Shutdown stops servers gracefully within ctx.
func Shutdown(ctx context.Context, servers ...*echo.Echo) error {
	var first error
	for _, e := range servers {
		if err := e.Shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
