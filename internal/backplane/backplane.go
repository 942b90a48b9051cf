// Package backplane relays realtime emissions between service instances
// over Redis pub/sub or NATS.
package backplane

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Tyrowin/roomchat/internal/realtime"
)

// Supported drivers.
const (
	DriverNone  = "none"
	DriverRedis = "redis"
	DriverNATS  = "nats"
)

// Config selects and configures the backplane.
type Config struct {
	Driver        string `env:"BACKPLANE_DRIVER" envDefault:"none"`
	RedisAddr     string `env:"BACKPLANE_REDIS_ADDR" envDefault:"localhost:6379"`
	NATSURL       string `env:"BACKPLANE_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	ChannelPrefix string `env:"BACKPLANE_CHANNEL_PREFIX" envDefault:"roomchat"`
}

// New connects the backplane named by cfg.Driver.
func New(ctx context.Context, cfg Config) (realtime.Backplane, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverNone:
		return realtime.NoopBackplane{}, nil
	case DriverRedis:
		return NewRedis(ctx, cfg.RedisAddr, cfg.ChannelPrefix)
	case DriverNATS:
		return NewNATS(cfg.NATSURL, cfg.ChannelPrefix)
	default:
		return nil, fmt.Errorf("unknown backplane driver %q", cfg.Driver)
	}
}

func encode(env realtime.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

func decode(data []byte) (realtime.Envelope, error) {
	var env realtime.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return realtime.Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}
