package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"notifier/internal/hub"
	"notifier/internal/logging"
	"notifier/pkg/types"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errForbidden          = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHistoryUnavailable = echo.NewHTTPError(http.StatusServiceUnavailable, "notification history is disabled")
)

type badRequestError struct {
	err error
}

func newBadRequestError(err error) error {
	return &badRequestError{err: err}
}

func (e *badRequestError) Error() string { return e.err.Error() }

func (e *badRequestError) Unwrap() error { return e.err }

// publishError maps hub and validation failures onto HTTP statuses
func publishError(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidGroupName),
		errors.Is(err, types.ErrInvalidChannel),
		errors.Is(err, types.ErrInvalidPayload),
		errors.Is(err, types.ErrPayloadTooLarge):
		return newBadRequestError(err)
	case errors.Is(err, hub.ErrHubNotRunning):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "notification hub is not running").SetInternal(err)
	default:
		return fmt.Errorf("publish failed: %w", err)
	}
}

// errorHandler renders every failure as {"error": ...}
func (s *Server) errorHandler(err error, c echo.Context) {
	var (
		code    int
		message interface{}
	)

	var httpErr *echo.HTTPError
	var validationErrs validator.ValidationErrors
	var badRequest *badRequestError
	switch {
	case errors.As(err, &httpErr):
		code = httpErr.Code
		message = httpErr.Message
	case errors.As(err, &validationErrs):
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field()] = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		}
		code = http.StatusBadRequest
		message = fields
	case errors.As(err, &badRequest):
		code = http.StatusBadRequest
		message = badRequest.Error()
	default:
		code = http.StatusInternalServerError
		message = http.StatusText(http.StatusInternalServerError)
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", logging.Fields{"path": c.Path(), "error": err})
	}
	if m, ok := message.(string); ok {
		message = echo.Map{"error": m}
	} else {
		message = echo.Map{"error": message}
	}

	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, message)
	}
	if err != nil {
		s.logger.Warn("failed to write error response", logging.Fields{"error": err})
	}
}
