package backplane

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/Tyrowin/roomchat/internal/realtime"
)

// Redis relays envelopes over Redis pub/sub. Each envelope is published on
// "<prefix>:<scope>:<target>" and every instance pattern-subscribes to
// "<prefix>:*".
type Redis struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedis connects to the Redis server at addr.
func NewRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	log.Printf("[backplane] Connected to redis at %s", addr)
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) channel(env realtime.Envelope) string {
	return r.prefix + ":" + env.Scope + ":" + env.Target
}

// Publish sends env to every subscribed instance.
func (r *Redis) Publish(ctx context.Context, env realtime.Envelope) error {
	data, err := encode(env)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel(env), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Subscribe starts delivering envelopes to deliver until ctx ends or the
// backplane is closed. It returns once the subscription is confirmed.
func (r *Redis) Subscribe(ctx context.Context, deliver func(realtime.Envelope)) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+":*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to redis: %w", err)
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.pubsub = pubsub
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				env, err := decode([]byte(msg.Payload))
				if err != nil {
					log.Printf("[backplane] Dropping message on %s: %v", msg.Channel, err)
					continue
				}
				deliver(env)
			}
		}
	}()
	return nil
}

// Close stops the subscription and closes the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if pubsub != nil {
		_ = pubsub.Close()
		<-done
	}
	return r.client.Close()
}
