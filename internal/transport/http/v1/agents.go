package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentdir/internal/directory"
	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/transport/http/apierror"
)

// RegisterRequest is the request to register an agent.
type RegisterRequest struct {
	AgentName              string            `json:"agentName"`
	CertificateFingerprint string            `json:"certificateFingerprint"`
	Descriptor             domain.Descriptor `json:"descriptor"`
}

// RenewRequest rotates an agent's certificate fingerprint.
type RenewRequest struct {
	AgentName              string `json:"agentName"`
	CertificateFingerprint string `json:"certificateFingerprint"`
	ExpectedVersion        *int64 `json:"expectedVersion,omitempty"`
}

// DeactivateRequest soft-deletes an agent.
type DeactivateRequest struct {
	AgentName       string `json:"agentName"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// AgentPage is one page of directory results.
type AgentPage struct {
	Agents     []domain.AgentSummary `json:"agents"`
	NextCursor string                `json:"nextCursor,omitempty"`
}

func summaries(agents []domain.AgentRecord) []domain.AgentSummary {
	out := make([]domain.AgentSummary, len(agents))
	for i := range agents {
		out[i] = agents[i].Summary()
	}
	return out
}

// RegisterAgent registers a new agent.
// POST /register
func (h *Handler) RegisterAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadBody(c, err)
	}

	agent, err := h.service.RegisterAgent(ctx, req.AgentName, req.CertificateFingerprint, req.Descriptor)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusCreated, agent)
}

// RenewAgent rotates the certificate fingerprint of an agent.
// POST /renew
func (h *Handler) RenewAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req RenewRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadBody(c, err)
	}

	agent, err := h.service.RenewAgent(ctx, req.AgentName, req.CertificateFingerprint, req.ExpectedVersion)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, agent)
}

// DeactivateAgent marks an agent inactive.
// POST /deactivate
func (h *Handler) DeactivateAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req DeactivateRequest
	if err := c.Bind(&req); err != nil {
		return apierror.BadBody(c, err)
	}
	if req.AgentName == "" {
		return apierror.Invalid(c, "agentName", "is required")
	}

	agent, err := h.service.DeactivateAgent(ctx, req.AgentName, req.ExpectedVersion)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, agent)
}

// AgentStatus returns an agent record.
// GET /status?agentName=
func (h *Handler) AgentStatus(c echo.Context) error {
	name := c.QueryParam("agentName")
	if name == "" {
		return apierror.Invalid(c, "agentName", "is required")
	}

	agent, err := h.service.GetAgent(c.Request().Context(), name)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, agent)
}

// GetAgent returns the full profile of an agent.
// GET /agents/:agentName
func (h *Handler) GetAgent(c echo.Context) error {
	agent, err := h.service.GetAgent(c.Request().Context(), c.Param("agentName"))
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, agent)
}

// GetAgentDescriptor returns the negotiation parameters of an active agent.
// GET /agents/:agentName/a2a
func (h *Handler) GetAgentDescriptor(c echo.Context) error {
	d, err := h.service.GetAgentDescriptor(c.Request().Context(), c.Param("agentName"))
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// ListAgents pages through registered agents.
// GET /agents?activeOnly=&limit=&after=
func (h *Handler) ListAgents(c echo.Context) error {
	activeOnly, err := queryBool(c, "activeOnly")
	if err != nil {
		return apierror.Write(c, err)
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return apierror.Write(c, err)
	}

	agents, next, err := h.service.ListAgents(c.Request().Context(), activeOnly != nil && *activeOnly, limit, c.QueryParam("after"))
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, AgentPage{Agents: summaries(agents), NextCursor: next})
}

// SearchAgents queries the directory index.
// GET /agents/search?skill=&protocol=&task=&a2a_compliant=&verified=&active=&limit=&after=
func (h *Handler) SearchAgents(c echo.Context) error {
	f := directory.Filter{
		Skill:    c.QueryParam("skill"),
		Protocol: c.QueryParam("protocol"),
		Task:     c.QueryParam("task"),
		After:    c.QueryParam("after"),
	}
	var err error
	if f.A2ACompliant, err = queryBool(c, "a2a_compliant"); err != nil {
		return apierror.Write(c, err)
	}
	if f.Verified, err = queryBool(c, "verified"); err != nil {
		return apierror.Write(c, err)
	}
	if f.Active, err = queryBool(c, "active"); err != nil {
		return apierror.Write(c, err)
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return apierror.Write(c, err)
	}

	agents, next, err := h.service.SearchAgents(c.Request().Context(), f, limit)
	if err != nil {
		return apierror.Write(c, err)
	}
	return c.JSON(http.StatusOK, AgentPage{Agents: summaries(agents), NextCursor: next})
}
