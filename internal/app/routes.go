package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parley/internal/plugins/auth"
	"github.com/keyxmakerx/parley/internal/plugins/friends"
	"github.com/keyxmakerx/parley/internal/plugins/presence"
)

// healthTimeout bounds the dependency checks behind /healthz.
const healthTimeout = 2 * time.Second

// healthResponse is the /healthz body.
type healthResponse struct {
	Status      string `json:"status"`
	OnlineUsers int    `json:"online_users"`
	Connections int    `json:"connections"`
}

// RegisterRoutes mounts /healthz and every plugin's routes. This is the one
// place routes are aggregated.
func (a *App) RegisterRoutes() {
	e := a.Echo
	svc := a.Services

	e.GET("/healthz", a.health)

	auth.RegisterRoutes(e, auth.NewHandler(svc.Auth), svc.Auth, a.limiter)
	friends.RegisterRoutes(e, friends.NewHandler(svc.Friends, svc.Hub), svc.Auth)

	connCfg := presence.ConnConfig{
		SendBuffer: a.Config.Presence.SendBuffer,
		PongWait:   a.Config.Presence.PongWait,
		WriteWait:  a.Config.Presence.WriteWait,
	}
	presence.RegisterRoutes(e, presence.NewHandler(svc.Hub, connCfg, a.Config.BaseURL, a.Logger), svc.Auth)
}

// health reports 200 when the user store and Redis answer, 503 otherwise,
// along with live connection counts.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	users, conns := a.Services.Hub.Registry().Stats()
	resp := healthResponse{Status: "ok", OnlineUsers: users, Connections: conns}

	if err := a.Services.Auth.Ping(ctx); err != nil {
		a.Logger.Warn("health check failed", slog.Any("error", err))
		resp.Status = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
