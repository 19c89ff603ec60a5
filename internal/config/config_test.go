package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SATSJAR_ENV", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.HTTP.Addr)
	}
	if cfg.RateLimit.AuthRequests != 10 || cfg.RateLimit.AuthWindow != 15*time.Minute {
		t.Fatalf("unexpected auth rate limit: %d/%s", cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow)
	}
	if cfg.RateLimit.APIRequests != 60 || cfg.RateLimit.APIWindow != time.Minute {
		t.Fatalf("unexpected api rate limit: %d/%s", cfg.RateLimit.APIRequests, cfg.RateLimit.APIWindow)
	}
	if cfg.SatsPerKES != 35 {
		t.Fatalf("unexpected conversion rate: %d", cfg.SatsPerKES)
	}
	if cfg.JWT.Secret == "" {
		t.Fatalf("development must fall back to a dev secret")
	}
	if cfg.IsProduction() {
		t.Fatalf("development flagged as production")
	}
}

func TestLoadProductionRequiresSecret(t *testing.T) {
	t.Setenv("SATSJAR_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected missing JWT_SECRET error")
	}
}
