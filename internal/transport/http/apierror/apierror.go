// Package apierror renders classified errors as JSON responses.
package apierror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/agentdir/internal/domain"
	"github.com/xiaot623/agentdir/internal/telemetry"
)

// Body is the error envelope of every failed request.
type Body struct {
	Error         Detail `json:"error"`
	CorrelationID string `json:"correlationId"`
}

// Detail describes one failure.
type Detail struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Field   string           `json:"field,omitempty"`
}

var statusByCode = map[domain.ErrorCode]int{
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
}

// Status returns the HTTP status for code.
func Status(code domain.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Write sends err as an error envelope.
func Write(c echo.Context, err error) error {
	e := domain.AsError(err)
	detail := Detail{Code: e.Code, Message: e.Message, Field: e.Field}
	if e.Code == domain.CodeInternal {
		detail.Message = "internal error"
	}
	if detail.Message == "" {
		detail.Message = string(e.Code)
	}
	return c.JSON(Status(e.Code), Body{
		Error:         detail,
		CorrelationID: telemetry.CorrelationID(c.Request().Context()),
	})
}

// Invalid sends a validation error for field.
func Invalid(c echo.Context, field, message string) error {
	return Write(c, domain.FieldError(field, "%s", message))
}

// BadBody sends the response for a body that could not be decoded.
func BadBody(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusUnsupportedMediaType {
		return Write(c, domain.NewError(domain.CodeValidation, "unsupported content type"))
	}
	return Write(c, domain.NewError(domain.CodeValidation, "invalid request body"))
}
