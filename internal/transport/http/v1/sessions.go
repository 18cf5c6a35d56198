package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/session"
	"github.com/xiaot623/agentdir/internal/transport/http/apierror"
)

// HeaderIdempotencyKey carries the initiate idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// InitiateRequest opens a session.
type InitiateRequest struct {
	InitiatingAgent string                `json:"initiatingAgent"`
	TargetAgent     string                `json:"targetAgent"`
	Task            string                `json:"task"`
	Context         domain.SessionContext `json:"context"`
	IdempotencyKey  string                `json:"idempotencyKey,omitempty"`
}

// InitiateResponse is the only response that carries the session token.
type InitiateResponse struct {
	*domain.Session
	SessionToken string `json:"sessionToken"`
}

// UpdateRequest moves a session along the state machine.
type UpdateRequest struct {
	Status          domain.SessionStatus  `json:"status"`
	ExpectedVersion *int64                `json:"expectedVersion"`
	Context         domain.SessionContext `json:"context,omitempty"`
	Reason          string                `json:"reason,omitempty"`
}

// VerifyRequest carries a session token to check.
type VerifyRequest struct {
	SessionToken string `json:"sessionToken"`
}

// SessionList is a page of sessions, newest first.
type SessionList struct {
	Sessions []domain.Session `json:"sessions"`
}

// InitiateSession opens a session and returns its token.
// POST /a2a/session/initiate
func (h *Handler) InitiateSession(c echo.Context) error {
	var req InitiateRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadBody(c, err)
	}
	key := req.IdempotencyKey
	if header := c.Request().Header.Get(HeaderIdempotencyKey); header != "" {
		if key != "" && key != header {
			return apierror.Invalid(c, "idempotencyKey", "differs from the Idempotency-Key header")
		}
		key = header
	}

	sess, err := h.service.InitiateSession(c.Request().Context(), session.InitiateRequest{
		InitiatingAgent: req.InitiatingAgent,
		TargetAgent:     req.TargetAgent,
		Task:            req.Task,
		Context:         req.Context,
		IdempotencyKey:  key,
	})
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusCreated, InitiateResponse{Session: sess, SessionToken: sess.SessionToken})
}

// GetSessionStatus returns a session with the expiration sweep applied.
// GET /a2a/session/:sessionId/status
func (h *Handler) GetSessionStatus(c echo.Context) error {
	sess, err := h.service.GetSessionStatus(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// UpdateSession applies one transition.
// PUT /a2a/session/:sessionId
func (h *Handler) UpdateSession(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadBody(c, err)
	}
	if req.Status == "" {
		return apierror.Invalid(c, "status", "is required")
	}
	if req.ExpectedVersion == nil {
		return apierror.Invalid(c, "expectedVersion", "is required")
	}

	sess, err := h.service.UpdateSession(c.Request().Context(), c.Param("sessionId"), session.UpdateRequest{
		Status:          req.Status,
		ExpectedVersion: *req.ExpectedVersion,
		Context:         req.Context,
		Reason:          req.Reason,
	})
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// TerminateSession forces a session to terminated.
// DELETE /a2a/session/:sessionId?expectedVersion=
func (h *Handler) TerminateSession(c echo.Context) error {
	expected, err := queryVersion(c)
	if err != nil {
		return apierror.Write(c, err)
	}

	sess, err := h.service.TerminateSession(c.Request().Context(), c.Param("sessionId"), expected)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// VerifySessionToken checks a session token against its session.
// POST /a2a/session/verify
func (h *Handler) VerifySessionToken(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadBody(c, err)
	}
	if req.SessionToken == "" {
		return apierror.Invalid(c, "sessionToken", "is required")
	}

	sess, err := h.service.VerifySessionToken(c.Request().Context(), req.SessionToken)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// ListSessions lists sessions, newest first.
// GET /a2a/sessions?initiatingAgent=&targetAgent=&status=&limit=&offset=
func (h *Handler) ListSessions(c echo.Context) error {
	filter := domain.SessionFilter{
		InitiatingAgent: c.QueryParam("initiatingAgent"),
		TargetAgent:     c.QueryParam("targetAgent"),
		Status:          domain.SessionStatus(c.QueryParam("status")),
	}
	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		return apierror.Write(c, err)
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		return apierror.Write(c, err)
	}

	sessions, err := h.service.ListSessions(c.Request().Context(), filter)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, SessionList{Sessions: sessions})
}
