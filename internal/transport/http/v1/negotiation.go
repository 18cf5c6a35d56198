package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/transport/http/apierror"
)

// NegotiateResponse lists ranked candidates, best first.
type NegotiateResponse struct {
	CandidateAgents []domain.CandidateScore `json:"candidateAgents"`
}

// Negotiate ranks the agents able to take a task.
// POST /a2a/negotiate
func (h *Handler) Negotiate(c echo.Context) error {
	var req domain.NegotiationRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadBody(c, err)
	}

	candidates, err := h.service.Negotiate(c.Request().Context(), req)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, NegotiateResponse{CandidateAgents: candidates})
}
