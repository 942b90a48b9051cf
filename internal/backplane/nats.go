package backplane

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Tyrowin/roomchat/internal/realtime"
)

// NATS relays envelopes over core NATS subjects "<prefix>.<scope>.<target>".
// There is no queue group: every instance needs every envelope.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

// NewNATS connects to the NATS server at url.
func NewNATS(url, prefix string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("roomchat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[backplane] Disconnected from nats: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[backplane] Reconnected to nats at %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	log.Printf("[backplane] Connected to nats at %s", url)
	return &NATS{conn: conn, prefix: prefix}, nil
}

func (n *NATS) subject(env realtime.Envelope) string {
	return n.prefix + "." + env.Scope + "." + env.Target
}

// Publish sends env to every subscribed instance.
func (n *NATS) Publish(_ context.Context, env realtime.Envelope) error {
	data, err := encode(env)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject(env), data); err != nil {
		return fmt.Errorf("failed to publish to nats: %w", err)
	}
	return nil
}

// Subscribe delivers every envelope to deliver until ctx ends or the
// backplane is closed. It returns once the server has registered the
// subscription.
func (n *NATS) Subscribe(ctx context.Context, deliver func(realtime.Envelope)) error {
	sub, err := n.conn.Subscribe(n.prefix+".>", func(msg *nats.Msg) {
		env, err := decode(msg.Data)
		if err != nil {
			log.Printf("[backplane] Dropping message on %s: %v", msg.Subject, err)
			return
		}
		deliver(env)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to nats: %w", err)
	}
	if err := n.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("failed to confirm nats subscription: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	if n.conn.IsClosed() {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}
