package internalapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentdir/internal/transport/http/apierror"
)

// VerificationRequest reports the outcome of a certificate or identity check.
type VerificationRequest struct {
	Verified        *bool  `json:"verified"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// SetVerification records whether an agent's identity is verified.
// POST /internal/agents/:agentName/verification
func (h *Handler) SetVerification(c echo.Context) error {
	var req VerificationRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadBody(c, err)
	}
	if req.Verified == nil {
		return apierror.Invalid(c, "verified", "is required")
	}

	agent, err := h.service.SetAgentVerified(c.Request().Context(), c.Param("agentName"), *req.Verified, req.ExpectedVersion)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, agent)
}
