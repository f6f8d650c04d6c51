package database

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/keyxmakerx/parley/internal/config"
)

// NewBadger opens the embedded Badger store used when STORE_DRIVER=badger.
// An empty path runs Badger fully in memory, which is what tests and
// throwaway dev servers use.
func NewBadger(cfg config.StoreConfig) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.BadgerPath)
	if cfg.BadgerPath == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Badger's own logger is very chatty at INFO.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", cfg.BadgerPath, err)
	}

	slog.Info("badger store opened",
		slog.String("path", cfg.BadgerPath),
		slog.Bool("in_memory", cfg.BadgerPath == ""),
	)
	return db, nil
}
