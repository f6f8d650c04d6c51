// Package main is the entry point for the parley server. It loads
// configuration, opens the configured stores, wires the plugins together,
// and serves HTTP until it is told to stop.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keyxmakerx/parley/internal/app"
	"github.com/keyxmakerx/parley/internal/config"
	"github.com/keyxmakerx/parley/internal/database"
	"github.com/keyxmakerx/parley/internal/plugins/auth"
	"github.com/keyxmakerx/parley/internal/plugins/friends"
)

// shutdownTimeout is how long in-flight requests and live connections get to
// finish after SIGINT or SIGTERM.
const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := setupLogging(cfg)

	logger.Info("starting parley",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.Store.Driver),
	)

	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("connected to Redis")

	stores, storeCloser, err := openStores(cfg)
	if err != nil {
		logger.Error("failed to open stores", slog.Any("error", err))
		os.Exit(1)
	}
	defer storeCloser.Close()

	application := app.New(cfg, rdb, app.NewServices(cfg, stores, rdb, auth.DefaultHashParams, logger), logger)
	application.RegisterRoutes()

	// Start returns as soon as the listener closes; main waits for the
	// hub to drain before the stores close underneath it.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := application.Shutdown(ctx); err != nil {
			logger.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	<-stopped
	logger.Info("server stopped")
}

// openStores opens the user and friendship stores for the configured driver.
// MariaDB schemas are migrated before use.
func openStores(cfg *config.Config) (app.Stores, io.Closer, error) {
	switch cfg.Store.Driver {
	case config.StoreBadger:
		db, err := database.NewBadger(cfg.Store)
		if err != nil {
			return app.Stores{}, nil, err
		}
		return app.Stores{
			Users:   auth.NewBadgerUserRepository(db),
			Friends: friends.NewBadgerFriendRepository(db),
		}, db, nil

	default:
		db, err := database.NewMariaDB(cfg.Database)
		if err != nil {
			return app.Stores{}, nil, err
		}
		if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
			_ = db.Close()
			return app.Stores{}, nil, err
		}
		return app.Stores{
			Users:   auth.NewUserRepository(db),
			Friends: friends.NewFriendRepository(db),
		}, db, nil
	}
}

// setupLogging installs the process logger. Development logs text, anything
// else logs JSON. LOG_LEVEL overrides the default level.
func setupLogging(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
