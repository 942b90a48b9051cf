package realtime

import (
	"context"
	"encoding/json"
)

// Envelope scopes.
const (
	ScopeRoom = "room"
	ScopeUser = "user"
)

// Envelope is one emission relayed between instances.
type Envelope struct {
	Origin      string          `json:"origin"`
	Scope       string          `json:"scope"`
	Target      string          `json:"target"`
	ExcludeUser string          `json:"excludeUser,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// Backplane relays envelopes between instances of the service. Publish is
// keyed by the envelope's scope and target; Subscribe receives every
// envelope published by any instance, including this one, until ctx ends.
type Backplane interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, deliver func(Envelope)) error
	Close() error
}

// NoopBackplane keeps emissions local. It is the single-instance backplane.
type NoopBackplane struct{}

// Publish discards the envelope.
func (NoopBackplane) Publish(context.Context, Envelope) error { return nil }

// Subscribe never delivers anything.
func (NoopBackplane) Subscribe(context.Context, func(Envelope)) error { return nil }

// Close does nothing.
func (NoopBackplane) Close() error { return nil }
