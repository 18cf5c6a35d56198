package internalapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentdir/internal/transport/http/apierror"
)

// SweepSessions fails every expired session now.
// POST /internal/sessions/sweep
func (h *Handler) SweepSessions(c echo.Context) error {
	n, err := h.service.SweepExpiredSessions(c.Request().Context())
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"expired": n})
}
