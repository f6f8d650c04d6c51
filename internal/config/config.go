// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// Store drivers for user and friendship persistence.
const (
	StoreMariaDB = "mariadb"
	StoreBadger  = "badger"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL, also the allowed CORS and websocket origin.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// CORSOrigins are extra browser origins allowed to call the API.
	CORSOrigins []string

	// TrustedProxies are the CIDRs whose forwarding headers are believed.
	// Empty means the usual private and loopback ranges.
	TrustedProxies []string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds authentication-related settings.
	Auth AuthConfig

	// Store selects where users and friendships live.
	Store StoreConfig

	// Presence tunes the live connection layer.
	Presence PresenceConfig
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is
// set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsPath is the directory holding golang-migrate .sql files.
	MigrationsPath string
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() to safely handle special
// characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SecretKey is the HMAC key session tokens are signed with.
	SecretKey string

	// SessionTTL is the absolute lifetime of a session token.
	SessionTTL time.Duration

	// HashConcurrency caps simultaneous argon2id computations. Each one
	// allocates 64 MiB.
	HashConcurrency int
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	// Driver is "mariadb" or "badger".
	Driver string

	// BadgerPath is the Badger data directory. Empty runs Badger in memory.
	BadgerPath string
}

// PresenceConfig tunes the websocket layer.
type PresenceConfig struct {
	// Shards is the number of independently locked registry partitions.
	Shards int

	// SendBuffer is the outbound queue length per connection.
	SendBuffer int

	// PongWait is how long a connection may stay silent before it is
	// considered dead and released from the registry.
	PongWait time.Duration

	// WriteWait bounds a single websocket write.
	WriteWait time.Duration
}

// environment is the flat env var view of Config.
type environment struct {
	Env      string `env:"ENV,default=development"`
	Port     int    `env:"PORT,default=8080"`
	BaseURL  string `env:"BASE_URL,default=http://localhost:8080"`
	LogLevel string `env:"LOG_LEVEL,default=debug"`

	// Comma-separated lists.
	CORSOrigins    string `env:"CORS_ORIGINS"`
	TrustedProxies string `env:"TRUSTED_PROXIES"`

	DBHost            string        `env:"DB_HOST,default=localhost:3306"`
	DBUser            string        `env:"DB_USER,default=parley"`
	DBPassword        string        `env:"DB_PASSWORD,default=parley"`
	DBName            string        `env:"DB_NAME,default=parley"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=5m"`
	MigrationsPath    string        `env:"MIGRATIONS_PATH,default=db/migrations"`

	RedisURL string `env:"REDIS_URL,default=redis://localhost:6379"`

	SecretKey       string        `env:"SECRET_KEY"`
	SessionTTL      time.Duration `env:"SESSION_TTL,default=168h"`
	HashConcurrency int           `env:"HASH_CONCURRENCY,default=4"`

	StoreDriver string `env:"STORE_DRIVER,default=mariadb"`
	BadgerPath  string `env:"BADGER_PATH,default=./data/badger"`

	PresenceShards     int           `env:"PRESENCE_SHARDS,default=64"`
	PresenceSendBuffer int           `env:"PRESENCE_SEND_BUFFER,default=64"`
	PresencePongWait   time.Duration `env:"PRESENCE_PONG_WAIT,default=60s"`
	PresenceWriteWait  time.Duration `env:"PRESENCE_WRITE_WAIT,default=10s"`
}

// Load reads configuration from a local .env file (if present) and the
// process environment. Returns an error if required variables are missing
// or inconsistent.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg := &Config{
		Env:      e.Env,
		Port:     e.Port,
		BaseURL:  e.BaseURL,
		LogLevel: e.LogLevel,

		CORSOrigins:    splitList(e.CORSOrigins),
		TrustedProxies: splitList(e.TrustedProxies),

		Database: DatabaseConfig{
			Host:            e.DBHost,
			User:            e.DBUser,
			Password:        e.DBPassword,
			Name:            e.DBName,
			dsnOverride:     e.DatabaseURL,
			MaxOpenConns:    e.DBMaxOpenConns,
			MaxIdleConns:    e.DBMaxIdleConns,
			ConnMaxLifetime: e.DBConnMaxLifetime,
			MigrationsPath:  e.MigrationsPath,
		},

		Redis: RedisConfig{
			URL: e.RedisURL,
		},

		Auth: AuthConfig{
			SecretKey:       e.SecretKey,
			SessionTTL:      e.SessionTTL,
			HashConcurrency: e.HashConcurrency,
		},

		Store: StoreConfig{
			Driver:     strings.ToLower(e.StoreDriver),
			BadgerPath: e.BadgerPath,
		},

		Presence: PresenceConfig{
			Shards:     e.PresenceShards,
			SendBuffer: e.PresenceSendBuffer,
			PongWait:   e.PresencePongWait,
			WriteWait:  e.PresenceWriteWait,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Provide a dev-only default secret so local dev works without .env.
	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = "dev-secret-key-do-not-use-in-production!!"
	}

	return cfg, nil
}

// validate checks cross-field rules that struct tags cannot express.
func (c *Config) validate() error {
	// Case-insensitive check catches common variants like "Production", "prod".
	envLower := strings.ToLower(c.Env)
	if envLower == "production" || envLower == "prod" {
		if c.Auth.SecretKey == "" {
			return fmt.Errorf("SECRET_KEY is required in production")
		}
		if len(c.Auth.SecretKey) < 32 {
			return fmt.Errorf("SECRET_KEY must be at least 32 characters in production")
		}
	}

	switch c.Store.Driver {
	case StoreMariaDB, StoreBadger:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMariaDB, StoreBadger, c.Store.Driver)
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.Auth.HashConcurrency < 1 {
		return fmt.Errorf("HASH_CONCURRENCY must be at least 1")
	}
	if c.Presence.Shards < 1 {
		return fmt.Errorf("PRESENCE_SHARDS must be at least 1")
	}
	if c.Presence.SendBuffer < 1 {
		return fmt.Errorf("PRESENCE_SEND_BUFFER must be at least 1")
	}
	if c.Presence.PongWait <= 0 || c.Presence.WriteWait <= 0 {
		return fmt.Errorf("PRESENCE_PONG_WAIT and PRESENCE_WRITE_WAIT must be positive")
	}
	return nil
}

// splitList splits a comma-separated env value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}
