package historyapi

import (
	"errors"
	"net/http"

	"github.com/NordCoder/Courier/internal/domain/history"
	"github.com/NordCoder/Courier/internal/domain/notification"
	"github.com/NordCoder/Courier/internal/ledger"
	"github.com/NordCoder/Courier/internal/repository/postgres"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var ErrInvalidInput = errors.New("invalid input")

// Envelope is the body of every response.
type Envelope struct {
	Data  any             `json:"data,omitempty"`
	Meta  *PaginationMeta `json:"meta,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

type PaginationMeta struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasNext    bool   `json:"has_next"`
}

type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Data: data})
}

func JSONList(c echo.Context, status int, data any, meta *PaginationMeta) error {
	return c.JSON(status, Envelope{Data: data, Meta: meta})
}

// HTTPErrorHandler renders handler errors as envelopes.
func HTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, apiErr := mapError(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, Envelope{Error: apiErr})
	}
}

func mapError(err error) (int, *APIError) {
	var be *echo.BindingError
	if errors.As(err, &be) {
		return http.StatusBadRequest, &APIError{
			Code:    "invalid_input",
			Message: "invalid request parameter",
			Details: []FieldError{{Field: be.Field, Message: "cannot be parsed"}},
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		return he.Code, &APIError{Code: codeFor(he.Code), Message: msg}
	}

	var ve *notification.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, &APIError{
			Code:    "validation_error",
			Message: "request validation failed",
			Details: []FieldError{{Field: ve.Field, Message: ve.Message}},
		}
	}

	switch {
	case errors.Is(err, history.ErrNotFound), errors.Is(err, postgres.ErrNotFound):
		return http.StatusNotFound, &APIError{Code: "not_found", Message: "record not found"}
	case errors.Is(err, postgres.ErrBadCursor),
		errors.Is(err, ledger.ErrInvalidStatus),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, &APIError{Code: "invalid_input", Message: err.Error()}
	case errors.Is(err, ledger.ErrInvalidTransition):
		return http.StatusConflict, &APIError{Code: "conflict", Message: err.Error()}
	default:
		return http.StatusInternalServerError, &APIError{Code: "internal_error", Message: "internal server error"}
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return "invalid_input"
	case http.StatusConflict:
		return "conflict"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
		return "error"
	}
}
