// Package apperror provides domain-specific error types for Parley.
// These errors carry an HTTP status code, a machine-readable kind, and a
// user-safe message. The Echo error handler maps them to JSON responses.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. These strings are part of the public API: clients switch on
// the "error" field of a failed response.
const (
	TypeUnauthenticated    = "unauthenticated"
	TypeInvalidCredentials = "invalid_credentials"
	TypeDuplicateEmail     = "duplicate_email"
	TypeUserNotFound       = "user_not_found"
	TypeSelfFriend         = "self_friend"
	TypeAlreadyFriends     = "already_friends"
	TypeValidation         = "validation_error"
	TypeBadRequest         = "bad_request"
	TypeNotFound           = "not_found"
	TypeInternal           = "internal_error"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "not_found").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Is reports whether err is (or wraps) an AppError of the given kind.
func Is(err error, kind string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Type == kind
}

// --- Constructors for common error types ---

// NewUnauthenticated creates a 401 for a missing, malformed, expired or
// revoked session.
func NewUnauthenticated(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeUnauthenticated,
		Message: message,
	}
}

// NewInvalidCredentials creates the single 401 returned by login for both an
// unknown email and a wrong password.
func NewInvalidCredentials() *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Type:    TypeInvalidCredentials,
		Message: "invalid email or password",
	}
}

// NewDuplicateEmail creates a 409 for a signup with a taken email.
func NewDuplicateEmail() *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    TypeDuplicateEmail,
		Message: "an account with this email already exists",
	}
}

// NewUserNotFound creates a 404 for a friend lookup that matched nobody.
func NewUserNotFound() *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    TypeUserNotFound,
		Message: "no user with this email",
	}
}

// NewSelfFriend creates a 400 for a user trying to befriend themselves.
func NewSelfFriend() *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    TypeSelfFriend,
		Message: "you cannot add yourself as a friend",
	}
}

// NewAlreadyFriends creates a 409 for an edge that already exists.
func NewAlreadyFriends() *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Type:    TypeAlreadyFriends,
		Message: "you are already friends",
	}
}

// NewNotFound creates a 404 Not Found error. Repositories return it for
// missing rows; services translate it into a more specific kind.
func NewNotFound(message string) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Type:    TypeNotFound,
		Message: message,
	}
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Type:    TypeBadRequest,
		Message: message,
	}
}

// NewValidation creates a 422 Unprocessable Entity error for validation failures.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Type:    TypeValidation,
		Message: message,
	}
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
