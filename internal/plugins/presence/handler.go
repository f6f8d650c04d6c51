package presence

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/parley/internal/apperror"
	"github.com/keyxmakerx/parley/internal/plugins/auth"
)

// Handler upgrades authenticated requests to live connections.
type Handler struct {
	hub      *Hub
	cfg      ConnConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the websocket handler. Browsers may only connect from
// baseURL's origin; clients that send no Origin header are allowed.
func NewHandler(hub *Hub, cfg ConnConfig, baseURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:    hub,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin(baseURL),
		},
	}
}

// Connect handles GET /ws.
func (h *Handler) Connect(c echo.Context) error {
	session := auth.GetSession(c)
	if session == nil {
		return apperror.NewUnauthenticated("authentication required")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		h.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return nil
	}

	conn := NewConn(ws, h.hub, session.UserID, session.ID, session.ExpiresAt, h.cfg, h.logger)
	if err := conn.Run(c.Request().Context()); err != nil {
		h.logger.Warn("rejected live connection",
			slog.String("user_id", session.UserID),
			slog.Any("error", err),
		)
	}
	return nil
}

// sameOrigin accepts requests without an Origin header, or whose Origin
// host matches the configured base URL or the request's own Host.
func sameOrigin(baseURL string) func(r *http.Request) bool {
	var allowed string
	if u, err := url.Parse(baseURL); err == nil {
		allowed = u.Host
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, allowed) || strings.EqualFold(u.Host, r.Host)
	}
}
