package friends

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parley/internal/plugins/auth"
)

// RegisterRoutes mounts the friend endpoints. add-friend lives under
// /api/auth alongside the other account actions.
func RegisterRoutes(e *echo.Echo, h *Handler, authService auth.AuthService) {
	requireAuth := auth.RequireAuth(authService)

	e.PUT("/api/auth/add-friend", h.AddFriend, requireAuth)
	e.GET("/api/friends", h.List, requireAuth)
}
