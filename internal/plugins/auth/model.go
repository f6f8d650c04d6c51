// Package auth is the credential store and session gate for Parley. It owns
// signup, login, logout, profile edits, and validation of signed session
// tokens whose revocation state lives in Redis.
//
// Every protected route in the application sits behind RequireAuth.
package auth

import (
	"time"
)

// User represents a registered Parley user. This is the domain model used
// throughout the application. Database scanning and JSON marshaling use this
// struct directly.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"` // Never expose in JSON responses.
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// --- Request DTOs (bound from HTTP requests) ---

// SignupRequest is the body of POST /api/auth/signup.
type SignupRequest struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=6,max=128"`
	DisplayName string `json:"display_name" validate:"required,min=2,max=100"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest is the body of PUT /api/auth/update-profile. Nil
// fields are left unchanged; an empty avatar_url clears the avatar.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// --- Service Input DTOs (passed from handler to service) ---

// SignupInput is the input for creating a new user.
type SignupInput struct {
	Email       string
	Password    string
	DisplayName string
}

// LoginInput is the input for authenticating a user.
type LoginInput struct {
	Email    string
	Password string
}

// UpdateProfileInput carries the only user fields a client may change.
type UpdateProfileInput struct {
	DisplayName *string
	AvatarURL   *string
}

// --- Session ---

// Session is the server-side record of an issued token, stored in Redis
// under its token ID. A token is only valid while this record exists.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthResult is what signup and login hand back: the bearer token, its
// expiry, and the authenticated user.
type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
