package v1

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentdir/internal/domain"
)

const initiateBody = `{"initiatingAgent":"agent-a.example.com","targetAgent":"agent-b.example.com","task":"summarize","context":{}}`

func initiate(t *testing.T, h *Handler) InitiateResponse {
	t.Helper()
	rec := serve(h, http.MethodPost, "/a2a/session/initiate", initiateBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp InitiateResponse
	decode(t, rec, &resp)
	return resp
}

func TestSessionFlow(t *testing.T) {
	h, _ := newTestHandler(t)
	registerAgents(t, h)

	created := initiate(t, h)
	if created.Status != domain.SessionStatusInitiated || created.SessionToken == "" || created.Version != 0 {
		t.Fatalf("unexpected session: %+v", created)
	}
	id := created.SessionID

	rec := serve(h, http.MethodGet, "/a2a/session/"+id+"/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), created.SessionToken) {
		t.Fatalf("status response must not carry the session token")
	}

	rec = serve(h, http.MethodPut, "/a2a/session/"+id, `{"status":"active","expectedVersion":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = serve(h, http.MethodPut, "/a2a/session/"+id, `{"status":"completed","expectedVersion":0}`)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "stale_state") {
		t.Fatalf("expected stale state, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = serve(h, http.MethodPut, "/a2a/session/"+id, `{"status":"initiated","expectedVersion":1}`)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "invalid_state_transition") {
		t.Fatalf("expected invalid transition, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := serve(h, http.MethodPut, "/a2a/session/"+id, `{"status":"completed"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without expectedVersion, got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		rec = serve(h, http.MethodDelete, "/a2a/session/"+id, "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"terminated"`) {
			t.Fatalf("terminate %d: got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	if rec := serve(h, http.MethodGet, "/a2a/session/nope/status", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestVerifySessionToken(t *testing.T) {
	h, _ := newTestHandler(t)
	registerAgents(t, h)
	created := initiate(t, h)

	rec := serve(h, http.MethodPost, "/a2a/session/verify", fmt.Sprintf(`{"sessionToken":%q}`, created.SessionToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	tampered := "A" + created.SessionToken[1:]
	if tampered == created.SessionToken {
		tampered = "B" + created.SessionToken[1:]
	}
	rec = serve(h, http.MethodPost, "/a2a/session/verify", fmt.Sprintf(`{"sessionToken":%q}`, tampered))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), tampered) {
		t.Fatalf("error response must not echo the token")
	}
}

func TestInitiateIdempotencyHeader(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)
	registerAgents(t, h)

	send := func() InitiateResponse {
		req := httptest.NewRequest(http.MethodPost, "/a2a/session/initiate", strings.NewReader(initiateBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderIdempotencyKey, "client-retry-7")
		rec := httptest.NewRecorder()
		if err := h.InitiateSession(e.NewContext(req, rec)); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp InitiateResponse
		decode(t, rec, &resp)
		return resp
	}

	first, second := send(), send()
	if first.SessionID != second.SessionID {
		t.Fatalf("expected the same session, got %s and %s", first.SessionID, second.SessionID)
	}

	var list SessionList
	rec := serve(h, http.MethodGet, "/a2a/sessions?initiatingAgent=agent-a.example.com", "")
	decode(t, rec, &list)
	if len(list.Sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(list.Sessions))
	}
}

func TestInitiateRejectsIncapableTarget(t *testing.T) {
	h, _ := newTestHandler(t)
	registerAgents(t, h)

	body := `{"initiatingAgent":"agent-a.example.com","targetAgent":"agent-b.example.com","task":"translate"}`
	if rec := serve(h, http.MethodPost, "/a2a/session/initiate", body); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}
