package config_test

import (
	"testing"
	"time"

	"github.com/iho/pspledger/internal/domain"
	"github.com/iho/pspledger/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		t.Fatalf("expected default database URL to be set")
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default HTTP port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.EditableWindowDays != domain.DefaultEditableDays {
		t.Fatalf("expected %d editable days, got %d", domain.DefaultEditableDays, cfg.EditableWindowDays)
	}

	policy, err := cfg.OverridePolicy()
	if err != nil {
		t.Fatalf("unexpected policy error: %v", err)
	}
	if !policy.For(domain.KindKasaTop).RequiresConfirmation || policy.For(domain.KindDevir).RequiresConfirmation {
		t.Fatalf("expected only kasa_top to require confirmation, got %+v", policy)
	}
	if !policy.For(domain.KindDevir).AllowNegative || policy.For(domain.KindAllocation).AllowNegative {
		t.Fatalf("expected only devir to allow negatives, got %+v", policy)
	}

	window, err := cfg.EditableWindow()
	if err != nil {
		t.Fatalf("unexpected window error: %v", err)
	}
	if window.Location.String() != "Europe/Istanbul" {
		t.Fatalf("expected Europe/Istanbul, got %s", window.Location)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_TIMEOUT", "45s")
	t.Setenv("DATABASE_LOCK_TIMEOUT", "750ms")
	t.Setenv("JWT_SECRET", "top-secret")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("CONFIRMATION_REQUIRED_KINDS", "kasa_top,devir")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LEDGER_TIMEZONE", "UTC")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis://example" {
		t.Fatalf("expected custom URLs, got %s %s", cfg.DatabaseURL, cfg.RedisURL)
	}
	if cfg.DatabaseTimeout != 45*time.Second {
		t.Fatalf("expected database timeout override, got %s", cfg.DatabaseTimeout)
	}
	if cfg.DatabaseLockTimeout != 750*time.Millisecond {
		t.Fatalf("expected lock timeout override, got %s", cfg.DatabaseLockTimeout)
	}
	if cfg.JWTSecret != "top-secret" || !cfg.AuthEnabled {
		t.Fatalf("expected auth settings to be set, got secret=%s enabled=%v", cfg.JWTSecret, cfg.AuthEnabled)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORSAllowedOrigins)
	}

	policy, err := cfg.OverridePolicy()
	if err != nil {
		t.Fatalf("unexpected policy error: %v", err)
	}
	if !policy.For(domain.KindDevir).RequiresConfirmation {
		t.Fatalf("expected devir to require confirmation")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"duration", "HTTP_READ_TIMEOUT", "not-a-duration"},
		{"timezone", "LEDGER_TIMEZONE", "Mars/Olympus"},
		{"kind", "CONFIRMATION_REQUIRED_KINDS", "bonus"},
		{"window", "EDITABLE_WINDOW_DAYS", "-1"},
		{"event sink", "EVENT_SINK", "kafka"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := config.Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("PSPLEDGER_API_URL", "https://ledger.example")
	t.Setenv("SYNC_RETRY_DELAY", "50ms")

	cfg, err := config.LoadClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIURL != "https://ledger.example" || cfg.SyncRetryDelay != 50*time.Millisecond {
		t.Fatalf("unexpected client config %+v", cfg)
	}
	if cfg.SyncMaxAttempts != 3 {
		t.Fatalf("expected 3 attempts by default, got %d", cfg.SyncMaxAttempts)
	}

	t.Setenv("SYNC_MAX_ATTEMPTS", "0")
	if _, err := config.LoadClient(); err == nil {
		t.Fatalf("expected error for zero attempts")
	}
}
