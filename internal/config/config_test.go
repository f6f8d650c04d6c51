package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("SECRET_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.Auth.SessionTTL != 168*time.Hour {
		t.Errorf("expected 168h session TTL, got %s", cfg.Auth.SessionTTL)
	}
	if cfg.Store.Driver != StoreMariaDB {
		t.Errorf("expected mariadb driver, got %q", cfg.Store.Driver)
	}
	if cfg.Presence.PongWait != 60*time.Second {
		t.Errorf("expected 60s pong wait, got %s", cfg.Presence.PongWait)
	}
	if cfg.Auth.SecretKey == "" {
		t.Error("expected a development secret to be filled in")
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development mode")
	}
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "Production")
	t.Setenv("SECRET_KEY", "too-short")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for short production secret")
	}
	if !strings.Contains(err.Error(), "SECRET_KEY") {
		t.Errorf("expected SECRET_KEY in error, got %v", err)
	}
}

func TestLoad_RejectsUnknownStoreDriver(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORE_DRIVER", "postgres")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}

func TestLoad_BadgerDriver(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("STORE_DRIVER", "Badger")
	t.Setenv("BADGER_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Driver != StoreBadger {
		t.Errorf("expected badger driver, got %q", cfg.Store.Driver)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", User: "parley", Password: "p@ss:word", Name: "parley"}

	dsn := d.DSN()
	if !strings.Contains(dsn, "tcp(db:3306)") {
		t.Errorf("expected default port appended, got %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("expected parseTime, got %s", dsn)
	}

	d.dsnOverride = "user:pw@tcp(other:3307)/x"
	if d.DSN() != "user:pw@tcp(other:3307)/x" {
		t.Errorf("expected DATABASE_URL override, got %s", d.DSN())
	}
}

func TestLoad_ListSettings(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("CORS_ORIGINS", " https://app.example.com, ,https://admin.example.com ")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://admin.example.com" {
		t.Errorf("unexpected CORS origins %q", cfg.CORSOrigins)
	}
	if cfg.TrustedProxies != nil {
		t.Errorf("expected no trusted proxies, got %q", cfg.TrustedProxies)
	}
}
