package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestOriginValidationEdgeCases tests various edge cases for origin validation.
func TestOriginValidationEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"Missing Origin header", []string{"http://localhost:8080"}, "", false},
		{"Exact match", []string{"http://localhost:8080"}, "http://localhost:8080", true},
		{"Case-insensitive match", []string{"http://LOCALHOST:8080"}, "HTTP://localhost:8080", true},
		{"Different port", []string{"http://localhost:8080"}, "http://localhost:9090", false},
		{"Different scheme", []string{"http://localhost:8080"}, "https://localhost:8080", false},
		{"Malformed origin", []string{"http://localhost:8080"}, "localhost:8080", false},
		{"Wildcard", []string{"*"}, "https://anywhere.example", true},
		{"Wildcard still needs an origin", []string{"*"}, "", false},
		{"Invalid configured entries are ignored", []string{"not-a-url", " ", "http://ok.example"}, "http://ok.example", true},
		{"Empty allow list", nil, "http://localhost:8080", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed)
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := policy.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%q) with %v = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

// TestRateLimiterRefill verifies the token bucket drains and refills with time.
func TestRateLimiterRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: 3 * time.Second})
	rl.now = func() time.Time { return now }
	rl.lastCheck = now

	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("event %d within burst was rejected", i)
		}
	}
	if rl.allow() {
		t.Fatal("event beyond burst was allowed")
	}

	now = now.Add(time.Second)
	if !rl.allow() {
		t.Error("one token should have been refilled after one second")
	}
	if rl.allow() {
		t.Error("only one token should have been refilled")
	}

	now = now.Add(time.Hour)
	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("bucket refilled to %d tokens, want capacity 3", allowed)
	}
}

// TestRateLimiterInvalidConfig verifies unusable settings still produce a limiter.
func TestRateLimiterInvalidConfig(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	if !rl.allow() {
		t.Error("a zero config should still allow one event")
	}
}

// TestConfigSanitize verifies unusable values fall back to defaults.
func TestConfigSanitize(t *testing.T) {
	origins := []string{"http://example.com"}
	cfg := Config{AllowedOrigins: origins, MaxMessageSize: -1}.sanitize()

	def := DefaultConfig()
	if cfg.Port != def.Port {
		t.Errorf("Port = %q, want %q", cfg.Port, def.Port)
	}
	if cfg.MaxMessageSize != def.MaxMessageSize {
		t.Errorf("MaxMessageSize = %d, want %d", cfg.MaxMessageSize, def.MaxMessageSize)
	}
	if cfg.SendBufferSize != def.SendBufferSize {
		t.Errorf("SendBufferSize = %d, want %d", cfg.SendBufferSize, def.SendBufferSize)
	}
	if cfg.RateLimit != def.RateLimit {
		t.Errorf("RateLimit = %+v, want %+v", cfg.RateLimit, def.RateLimit)
	}

	origins[0] = "http://changed.example"
	if cfg.AllowedOrigins[0] != "http://example.com" {
		t.Error("sanitize should copy AllowedOrigins")
	}
}

// TestServerLifecycle verifies production timeouts are applied and that
// Shutdown stops the listener and the hub.
func TestServerLifecycle(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Port = "127.0.0.1:0" })
	srv := env.srv.http

	if srv.Addr != "127.0.0.1:0" {
		t.Errorf("Addr = %q, want 127.0.0.1:0", srv.Addr)
	}
	if srv.ReadTimeout != 15*time.Second || srv.WriteTimeout != 15*time.Second || srv.IdleTimeout != 60*time.Second {
		t.Errorf("unexpected timeouts: read=%v write=%v idle=%v", srv.ReadTimeout, srv.WriteTimeout, srv.IdleTimeout)
	}
	if srv.Handler == nil {
		t.Fatal("HTTP server has no handler")
	}

	if err := env.srv.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := env.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("ListenAndServe() after Shutdown = %v, want http.ErrServerClosed", err)
	}
}

// TestClientSendOverflowCloses verifies a slow client is cut off instead of
// blocking the sender.
func TestClientSendOverflowCloses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendBufferSize = 2
	client := NewClient(nil, nil, testIdentity, "test", cfg)

	if !client.Send([]byte("1")) || !client.Send([]byte("2")) {
		t.Fatal("frames within the buffer should be queued")
	}
	if client.Send([]byte("3")) {
		t.Fatal("frame beyond the buffer should be rejected")
	}
	if client.Send([]byte("4")) {
		t.Error("a closed client should reject further frames")
	}

	drained := 0
	for range client.send {
		drained++
	}
	if drained != 2 {
		t.Errorf("drained %d frames, want 2", drained)
	}

	client.close()
}
