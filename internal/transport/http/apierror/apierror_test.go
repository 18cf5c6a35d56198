package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/telemetry"
)

func TestStatusMapping(t *testing.T) {
	tests := map[domain.ErrorCode]int{
		domain.CodeValidation:        http.StatusBadRequest,
		domain.CodeDuplicateAgent:    http.StatusConflict,
		domain.CodeUnknownAgent:      http.StatusNotFound,
		domain.CodeUnknownSession:    http.StatusNotFound,
		domain.CodeInactiveAgent:     http.StatusGone,
		domain.CodeNoCapableTarget:   http.StatusUnprocessableEntity,
		domain.CodeInvalidTransition: http.StatusConflict,
		domain.CodeStaleState:        http.StatusConflict,
		domain.CodeConflict:          http.StatusConflict,
		domain.CodeInvalidSignature:  http.StatusUnauthorized,
		domain.CodeTokenExpired:      http.StatusUnauthorized,
		domain.CodeInternal:          http.StatusInternalServerError,
		"something_new":              http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, Status(code), string(code))
	}
}

func TestWrite(t *testing.T) {
	e := echo.New()

	t.Run("field error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(telemetry.WithCorrelationID(req.Context(), "req-1"))
		rec := httptest.NewRecorder()

		require.NoError(t, Write(e.NewContext(req, rec), domain.FieldError("task", "is required")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body Body
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, domain.CodeValidation, body.Error.Code)
		assert.Equal(t, "task", body.Error.Field)
		assert.Equal(t, "is required", body.Error.Message)
		assert.Equal(t, "req-1", body.CorrelationID)
	})

	t.Run("internal cause is hidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		require.NoError(t, Write(e.NewContext(req, rec), errors.New("disk on fire at /var/lib/agentdir")))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "disk on fire")
		assert.Contains(t, rec.Body.String(), `"code":"internal_error"`)
	})
}
