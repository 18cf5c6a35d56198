// Package internalapi provides HTTP handlers for collaborator-facing APIs.
// These APIs are only reachable on the internal port.
package internalapi

import (
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentdir/internal/service"
)

// Handler handles internal HTTP requests from collaborators.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new internal API handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers internal routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Identity verification collaborator
	e.POST("/internal/agents/:agentName/verification", h.SetVerification)

	// Session maintenance
	e.POST("/internal/sessions/sweep", h.SweepSessions)
}
