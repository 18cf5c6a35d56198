// Package v1 provides the public REST surface of the directory.
package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers external routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Registry
	e.POST("/register", h.RegisterAgent)
	e.POST("/renew", h.RenewAgent)
	e.POST("/deactivate", h.DeactivateAgent)
	e.GET("/status", h.AgentStatus)

	// Directory
	e.GET("/agents", h.ListAgents)
	e.GET("/agents/search", h.SearchAgents)
	e.GET("/agents/:agentName", h.GetAgent)
	e.GET("/agents/:agentName/a2a", h.GetAgentDescriptor)

	// Negotiation and sessions
	e.POST("/a2a/negotiate", h.Negotiate)
	e.POST("/a2a/session/initiate", h.InitiateSession)
	e.POST("/a2a/session/verify", h.VerifySessionToken)
	e.GET("/a2a/session/:sessionId/status", h.GetSessionStatus)
	e.PUT("/a2a/session/:sessionId", h.UpdateSession)
	e.DELETE("/a2a/session/:sessionId", h.TerminateSession)
	e.GET("/a2a/sessions", h.ListSessions)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func queryBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, domain.FieldError(name, "must be true or false")
	}
	return &v, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.FieldError(name, "must be an integer")
	}
	return v, nil
}

func queryVersion(c echo.Context) (*int64, error) {
	raw := c.QueryParam("expectedVersion")
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.FieldError("expectedVersion", "must be an integer")
	}
	return &v, nil
}
