package rest

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rbroggi/referralhub/internal/core/model"
)

type errorResponse struct {
	Message string `json:"message"`
}

// statusOf maps an error returned by a handler to its HTTP status.
func statusOf(err error) int {
	var httpErr *echo.HTTPError
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.As(err, &validationErrs),
		errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, model.ErrDuplicateEmail),
		errors.Is(err, model.ErrInvalidReferralCode),
		errors.Is(err, model.ErrSelfReferral),
		errors.Is(err, model.ErrInvalidCredentials),
		errors.Is(err, model.ErrInsufficientPoints):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// messageOf returns the client-facing message. Internal errors are never detailed.
func messageOf(err error, status int) string {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if msg, ok := httpErr.Message.(string); ok {
			return msg
		}
		return http.StatusText(httpErr.Code)
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return "invalid request: " + validationErrs.Error()
	}
	for _, known := range []error{
		model.ErrInvalidArgument,
		model.ErrDuplicateEmail,
		model.ErrInvalidReferralCode,
		model.ErrSelfReferral,
		model.ErrInvalidCredentials,
		model.ErrInsufficientPoints,
		model.ErrUnauthenticated,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if status == http.StatusNotFound {
		return "user not found"
	}
	return "internal error"
}

// errorHandler renders every error as {"message": ...}.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := statusOf(err)
	entry := requestLogger(c).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, errorResponse{Message: messageOf(err, status)})
	}
	if writeErr != nil {
		requestLogger(c).WithError(writeErr).Error("error writing error response")
	}
}
