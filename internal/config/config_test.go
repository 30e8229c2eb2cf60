package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "DB_AUTO_MIGRATE", "TX_MAX_RETRIES", "STOCK_CACHE_TTL_SECONDS", "LOG_LEVEL", "LOG_DEVELOPMENT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if cfg.DatabaseURL != "" || !cfg.DBAutoMigrate {
		t.Fatalf("expected memory store with auto-migrate on, got %+v", cfg)
	}
	if cfg.TxMaxRetries != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.TxMaxRetries)
	}
	if cfg.StockCacheTTL() != 30*time.Second {
		t.Fatalf("expected 30s stock cache ttl, got %s", cfg.StockCacheTTL())
	}
	if cfg.LogLevel != "info" || cfg.LogDevelopment {
		t.Fatalf("unexpected log defaults: %q %v", cfg.LogLevel, cfg.LogDevelopment)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("TX_MAX_RETRIES", "-2")
	t.Setenv("STOCK_CACHE_TTL_SECONDS", "soon")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Load()
	if cfg.TxMaxRetries != 3 || cfg.StockCacheTTLSeconds != 30 || cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallbacks, got %+v", cfg)
	}
	if cfg.DBAutoMigrate {
		t.Fatalf("expected DB_AUTO_MIGRATE=false to be honoured")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected lower-cased log level, got %q", cfg.LogLevel)
	}
}
