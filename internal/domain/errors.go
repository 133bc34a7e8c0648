package domain

import "errors"

// Authorization errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingFields      = errors.New("missing required fields")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrApprovalRequired   = errors.New("account is pending approval")
)

// Account lifecycle errors.
var (
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidAction   = errors.New("action must be approve or reject")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
)

// ErrEmptyUpload is returned for a zero-byte image.
var ErrEmptyUpload = errors.New("uploaded image is empty")
