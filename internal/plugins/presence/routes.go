package presence

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parley/internal/plugins/auth"
)

// RegisterRoutes mounts the websocket endpoint behind session auth.
func RegisterRoutes(e *echo.Echo, h *Handler, authService auth.AuthService) {
	e.GET("/ws", h.Connect, auth.RequireAuth(authService))
}
