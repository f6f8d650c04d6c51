package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parley/internal/apperror"
	"github.com/keyxmakerx/parley/internal/validation"
)

// SessionCookieName is the HTTP cookie that carries the session token.
const SessionCookieName = "parley_session"

// Handler handles the /api/auth endpoints. Handlers are thin: they bind the
// request, call the service, and render JSON. No business logic lives here.
type Handler struct {
	service AuthService
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

// Signup creates an account and signs the caller in (POST /api/auth/signup).
func (h *Handler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	result, err := h.service.Signup(c.Request().Context(), SignupInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return err
	}

	setSessionCookie(c, result.Token, result.ExpiresAt)
	return c.JSON(http.StatusCreated, result)
}

// Login exchanges credentials for a session (POST /api/auth/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	result, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	setSessionCookie(c, result.Token, result.ExpiresAt)
	return c.JSON(http.StatusOK, result)
}

// Logout revokes whatever session the request carries (POST /api/auth/logout).
// A request with no token, or a dead one, still gets 204.
func (h *Handler) Logout(c echo.Context) error {
	token, _ := getSessionToken(c)
	clearSessionCookie(c)

	if err := h.service.Logout(c.Request().Context(), token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Check returns the signed-in user (GET /api/auth/check).
func (h *Handler) Check(c echo.Context) error {
	user, err := h.service.CurrentUser(c.Request().Context(), GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateProfile edits display name and avatar (PUT /api/auth/update-profile).
func (h *Handler) UpdateProfile(c echo.Context) error {
	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	user, err := h.service.UpdateProfile(c.Request().Context(), GetUserID(c), UpdateProfileInput{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// setSessionCookie sets the session cookie on the response. The cookie is
// HttpOnly (JS can't read it), Secure if behind TLS, and SameSite=Lax. It
// lives exactly as long as the session.
func setSessionCookie(c echo.Context, token string, expiresAt time.Time) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

// clearSessionCookie removes the session cookie by setting MaxAge to -1.
func clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
