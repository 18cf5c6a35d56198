package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentdir/internal/directory"
	"github.com/xiaot623/agentdir/internal/negotiation"
	"github.com/xiaot623/agentdir/internal/registry"
	"github.com/xiaot623/agentdir/internal/service"
	"github.com/xiaot623/agentdir/internal/session"
	"github.com/xiaot623/agentdir/internal/telemetry"
	"github.com/xiaot623/agentdir/internal/token"
	"github.com/xiaot623/agentdir/policy"
	"github.com/xiaot623/agentdir/tests/helpers"
)

func newTestService(t *testing.T) *service.Service {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)
	logger := telemetry.NewLogger(io.Discard, "error")
	reg := registry.New(db, registry.Options{})
	index := directory.NewStoreIndex(db, 50)
	issuer, err := token.NewIssuer(bytes.Repeat([]byte("k"), token.MinKeySize), nil)
	require.NoError(t, err)
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	broker := session.NewBroker(db, reg, engine, issuer, session.Options{Logger: logger})
	return service.New(reg, index, negotiation.NewEngine(reg, index, negotiation.Options{}), broker, logger)
}

func TestExternalServerCorrelationID(t *testing.T) {
	var logs bytes.Buffer
	e := NewExternalServer(newTestService(t), Options{
		Logger:         telemetry.NewLogger(&logs, "info"),
		RequestTimeout: time.Second,
	})

	req := httptest.NewRequest(http.MethodGet, "/status?agentName=ghost.example.com", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))

	var body struct {
		CorrelationID string `json:"correlationId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-123", body.CorrelationID)

	assert.Contains(t, logs.String(), `"path":"/status"`)
	assert.Contains(t, logs.String(), `"correlation_id":"req-123"`)
	assert.NotContains(t, logs.String(), "ghost.example.com", "query strings stay out of access logs")
}

func TestServersGenerateCorrelationID(t *testing.T) {
	e := NewInternalServer(newTestService(t), Options{Logger: telemetry.NewLogger(io.Discard, "error")})

	req := httptest.NewRequest(http.MethodPost, "/internal/sessions/sweep", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestInternalRoutesStayOffExternalServer(t *testing.T) {
	e := NewExternalServer(newTestService(t), Options{Logger: telemetry.NewLogger(io.Discard, "error")})

	req := httptest.NewRequest(http.MethodPost, "/internal/sessions/sweep", strings.NewReader(""))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
