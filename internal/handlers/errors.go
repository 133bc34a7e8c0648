package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/domain"
	"github.com/example/neuroscan/internal/logging"
)

// statusFor maps domain errors onto HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingFields),
		errors.Is(err, domain.ErrDuplicateEmail),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrPasswordTooLong),
		errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, domain.ErrInvalidRating):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrApprovalRequired):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the client-facing text for err, or fallback when the
// error is internal.
func messageFor(err error, fallback string) string {
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		return "Missing required fields"
	case errors.Is(err, domain.ErrDuplicateEmail):
		return "Email already registered"
	case errors.Is(err, domain.ErrInvalidEmail):
		return "Invalid email address"
	case errors.Is(err, domain.ErrPasswordTooLong):
		return "Password must be at most 72 bytes"
	case errors.Is(err, domain.ErrInvalidRating):
		return "Rating must be between 1 and 5"
	case errors.Is(err, domain.ErrUserNotFound):
		return "User not found"
	default:
		return fallback
	}
}

// logInternal records errors that surface as 500s.
func (h *Handler) logInternal(c *gin.Context, op string, err error) {
	if statusFor(err) != http.StatusInternalServerError {
		return
	}
	logging.WithOperation(h.logger, op, logging.RequestIDFrom(c.Request.Context())).
		Error("request failed", zap.Error(err))
}
