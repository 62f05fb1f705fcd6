// Package httpx holds the request context accessors and the error envelope
// shared by every echo handler.
package httpx

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/gigmarket/internal/apperr"
)

// Context keys set by middleware.
const (
	KeyUserID = "user_id"
	KeyRole   = "role"
	KeyLogger = "logger"
)

// Stable error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeForbidden         = "forbidden"
	ErrCodeNotFound          = "not_found"
	ErrCodeConflict          = "conflict"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeValidation        = "validation_failed"
	ErrCodeStoreUnavailable  = "store_unavailable"
	ErrCodeInternal          = "internal_error"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	RequestID string            `json:"request_id,omitempty"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// UserID returns the authenticated user id, or "" when absent.
func UserID(c echo.Context) string {
	id, _ := c.Get(KeyUserID).(string)
	return id
}

// Role returns the authenticated user's role, or "".
func Role(c echo.Context) string {
	r, _ := c.Get(KeyRole).(string)
	return r
}

// LoggerFrom returns the request-scoped logger, falling back to the global one.
func LoggerFrom(c echo.Context) *zerolog.Logger {
	if lg, ok := c.Get(KeyLogger).(*zerolog.Logger); ok && lg != nil {
		return lg
	}
	l := log.With().Logger()
	return &l
}

// CodeFor maps an apperr kind onto its wire code.
func CodeFor(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return ErrCodeNotFound
	case apperr.KindForbidden:
		return ErrCodeForbidden
	case apperr.KindUnauthorized:
		return ErrCodeUnauthorized
	case apperr.KindInvalidTransition:
		return ErrCodeInvalidTransition
	case apperr.KindConflict:
		return ErrCodeConflict
	case apperr.KindValidation:
		return ErrCodeValidation
	case apperr.KindStoreUnavailable:
		return ErrCodeStoreUnavailable
	}
	return ErrCodeInternal
}

// Fail writes err as an ErrorResponse. 5xx responses are logged with their cause.
func Fail(c echo.Context, err error) error {
	status := apperr.HTTPStatus(err)
	resp := ErrorResponse{
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		Code:      CodeFor(err),
		Message:   apperr.Message(err),
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		resp.Fields = ae.Fields
	}
	if status >= http.StatusInternalServerError {
		LoggerFrom(c).Error().Err(err).Int("status", status).Str("code", resp.Code).Msg("api error")
	}
	return c.JSON(status, resp)
}

// FailStatus writes an envelope for errors that never reach a service.
func FailStatus(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, ErrorResponse{
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		Code:      code,
		Message:   msg,
	})
}
