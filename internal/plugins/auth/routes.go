package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parley/internal/middleware"
)

// RegisterRoutes sets up the /api/auth routes. Signup, login, and logout are
// public; check and update-profile sit behind RequireAuth.
//
// Signup and login are rate-limited per IP: 5 signups and 10 logins a minute.
func RegisterRoutes(e *echo.Echo, h *Handler, service AuthService, limiter *middleware.RateLimiter) {
	g := e.Group("/api/auth")

	g.POST("/signup", h.Signup, limiter.Limit("signup", 5, time.Minute))
	g.POST("/login", h.Login, limiter.Limit("login", 10, time.Minute))
	g.POST("/logout", h.Logout)

	g.GET("/check", h.Check, RequireAuth(service))
	g.PUT("/update-profile", h.UpdateProfile, RequireAuth(service))
}
