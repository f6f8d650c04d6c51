// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure and the Echo instance, installs global
// middleware and the JSON error handler, and mounts every plugin's routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/parley/internal/apperror"
	"github.com/keyxmakerx/parley/internal/config"
	"github.com/keyxmakerx/parley/internal/middleware"
	"github.com/keyxmakerx/parley/internal/plugins/auth"
	"github.com/keyxmakerx/parley/internal/plugins/friends"
	"github.com/keyxmakerx/parley/internal/plugins/presence"
)

// Services are the plugin services the HTTP layer is built on. main wires
// them to whichever store driver is configured.
type Services struct {
	Auth    auth.AuthService
	Friends friends.FriendService
	Hub     *presence.Hub
}

// App holds all shared dependencies and the Echo HTTP server instance.
type App struct {
	Config   *config.Config
	Redis    *redis.Client
	Services Services
	Echo     *echo.Echo
	Logger   *slog.Logger

	limiter *middleware.RateLimiter
}

// New creates the App and configures Echo with global middleware and error
// handling. Routes are mounted separately by RegisterRoutes.
func New(cfg *config.Config, rdb *redis.Client, svc Services, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	proxies := cfg.TrustedProxies
	if len(proxies) == 0 {
		proxies = middleware.DefaultTrustedProxies
	}
	middleware.TrustedProxies(e, proxies)

	app := &App{
		Config:   cfg,
		Redis:    rdb,
		Services: svc,
		Echo:     e,
		Logger:   logger,
		limiter:  middleware.NewRateLimiter(rdb, logger),
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware. Recovery sits inside the
// logger so a recovered panic is still logged with its final status.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.RequestLogger(a.Logger))
	a.Echo.Use(middleware.Recovery(a.Logger))
	a.Echo.Use(middleware.SecurityHeaders(strings.HasPrefix(a.Config.BaseURL, "https://")))
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   append([]string{a.Config.BaseURL}, a.Config.CORSOrigins...),
		AllowCredentials: true,
	}, a.Logger))
	a.Echo.Use(middleware.CookieRequestGuard(auth.SessionCookieName))
}

// errorResponse is the body of every error the API returns.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorHandler maps AppErrors and echo's own HTTP errors to JSON. Internal
// causes are logged here and never sent to the client.
func (a *App) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := apperror.SafeCode(err)
	body := errorResponse{Error: apperror.TypeInternal, Message: apperror.SafeMessage(err)}

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		body.Error = appErr.Type
		if appErr.Internal != nil {
			a.Logger.Error("internal error",
				slog.String("type", appErr.Type),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
				slog.String("request_id", middleware.RequestID(c)),
			)
		}

	case errors.As(err, &echoErr):
		code = echoErr.Code
		body.Error = errorTypeForStatus(code)
		if msg, ok := echoErr.Message.(string); ok {
			body.Message = msg
		} else {
			body.Message = strings.ToLower(http.StatusText(code))
		}

	default:
		a.Logger.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
			slog.String("request_id", middleware.RequestID(c)),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, body)
}

// errorTypeForStatus names router and middleware errors the same way the
// domain errors are named.
func errorTypeForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return apperror.TypeBadRequest
	case http.StatusUnauthorized:
		return apperror.TypeUnauthenticated
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return apperror.TypeNotFound
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		if code >= 500 {
			return apperror.TypeInternal
		}
		return apperror.TypeBadRequest
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	a.Logger.Info("starting parley server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("store", a.Config.Store.Driver),
	)
	return a.Echo.Start(addr)
}

// Shutdown stops accepting requests, then closes every live connection and
// waits for them to leave the presence registry.
func (a *App) Shutdown(ctx context.Context) error {
	httpErr := a.Echo.Shutdown(ctx)
	hubErr := a.Services.Hub.Shutdown(ctx)
	return errors.Join(httpErr, hubErr)
}
