package config

import (
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/auth"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != ":8080" {
		t.Errorf("expected default port :8080, got %q", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:8080" {
		t.Errorf("unexpected default origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.MaxMessageSize != 4096 || cfg.Server.SendBufferSize != 256 {
		t.Errorf("unexpected socket defaults %+v", cfg.Server)
	}
	if cfg.Server.RateLimit.Burst != 10 || cfg.Server.RateLimit.RefillInterval != time.Second {
		t.Errorf("unexpected rate limit defaults %+v", cfg.Server.RateLimit)
	}
	if cfg.Store.Path != "roomchat.db" {
		t.Errorf("expected default database path, got %q", cfg.Store.Path)
	}
	if cfg.Auth.TTL != 24*time.Hour || cfg.Auth.Issuer != "roomchat" {
		t.Errorf("unexpected auth defaults %+v", cfg.Auth)
	}
	if cfg.Auth.Secret != auth.DefaultSecret || !cfg.Auth.UsesDefaultSecret() {
		t.Errorf("expected the default JWT secret to be detected, got %q", cfg.Auth.Secret)
	}
	if cfg.Backplane.Driver != "none" {
		t.Errorf("expected backplane driver none, got %q", cfg.Backplane.Driver)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected shutdown timeout 10s, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"SERVER_PORT":                ":9000",
		"ALLOWED_ORIGINS":            "https://a.example,https://b.example",
		"RATE_LIMIT_BURST":           "3",
		"RATE_LIMIT_REFILL_INTERVAL": "250ms",
		"DATABASE_PATH":              ":memory:",
		"JWT_SECRET":                 "s3cret",
		"BACKPLANE_DRIVER":           "nats",
		"BACKPLANE_NATS_URL":         "nats://nats:4222",
		"INSTANCE_ID":                "node-a",
		"SHUTDOWN_TIMEOUT":           "3s",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != ":9000" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.RateLimit.Burst != 3 || cfg.Server.RateLimit.RefillInterval != 250*time.Millisecond {
		t.Errorf("rate limit = %+v", cfg.Server.RateLimit)
	}
	if cfg.Store.Path != ":memory:" || cfg.Auth.Secret != "s3cret" || cfg.Auth.UsesDefaultSecret() {
		t.Errorf("store = %+v auth secret = %q", cfg.Store, cfg.Auth.Secret)
	}
	if cfg.Backplane.Driver != "nats" || cfg.Backplane.NATSURL != "nats://nats:4222" {
		t.Errorf("backplane = %+v", cfg.Backplane)
	}
	if cfg.InstanceID != "node-a" || cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("instance = %q timeout = %v", cfg.InstanceID, cfg.ShutdownTimeout)
	}
}

func TestLoadFromError(t *testing.T) {
	_, err := LoadFrom(map[string]string{"RATE_LIMIT_BURST": "not-an-int"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadReadsProcessEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", ":7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != ":7070" {
		t.Fatalf("expected port from environment, got %q", cfg.Server.Port)
	}
}
