package app

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/parley/internal/config"
	"github.com/keyxmakerx/parley/internal/plugins/auth"
	"github.com/keyxmakerx/parley/internal/plugins/friends"
	"github.com/keyxmakerx/parley/internal/plugins/presence"
)

// Stores are the persistence backends for one store driver.
type Stores struct {
	Users   auth.UserRepository
	Friends friends.FriendRepository
}

// NewServices builds the plugin services over stores and Redis and connects
// them: revoked sessions and new friendships both reach the presence hub.
func NewServices(cfg *config.Config, stores Stores, rdb *redis.Client, hashParams auth.HashParams, logger *slog.Logger) Services {
	authService := auth.NewAuthService(
		stores.Users,
		auth.NewSessionStore(rdb, time.Now),
		auth.NewTokenSigner(cfg.Auth.SecretKey, time.Now),
		auth.NewHasher(hashParams, cfg.Auth.HashConcurrency),
		cfg.Auth.SessionTTL,
		time.Now,
	)

	friendService := friends.NewFriendService(stores.Friends, friends.NewUserFinderAdapter(stores.Users), time.Now)

	hub := presence.NewHub(presence.NewRegistry(cfg.Presence.Shards), friendService, logger)
	authService.SetRevocationListener(hub)
	friendService.SetAddedListener(hub)

	return Services{Auth: authService, Friends: friendService, Hub: hub}
}
