package realtime

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/Tyrowin/roomchat/internal/domain"
)

// Options configures a Service.
type Options struct {
	// Backplane relays emissions between instances. Nil means single instance.
	Backplane Backplane
	// InstanceID identifies this instance on the backplane. Generated when empty.
	InstanceID string
	// MeterProvider receives the service metrics. Nil means the global provider.
	MeterProvider metric.MeterProvider
}

// Service is the realtime core: it owns the connection registry and room
// table for the lifetime of the process and wires them into presence
// tracking and event dispatch.
type Service struct {
	registry   *Registry
	rooms      *Rooms
	emitter    *Emitter
	presence   *Presence
	dispatcher *Dispatcher
	backplane  Backplane

	mu     sync.Mutex
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewService builds a Service over store.
func NewService(store Store, opts Options) *Service {
	backplane := opts.Backplane
	if backplane == nil {
		backplane = NoopBackplane{}
	}
	instanceID := opts.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	m := newMetrics(opts.MeterProvider)
	registry := NewRegistry()
	rooms := NewRooms()
	emitter := newEmitter(registry, rooms, backplane, instanceID, m)

	return &Service{
		registry:   registry,
		rooms:      rooms,
		emitter:    emitter,
		presence:   newPresence(registry, rooms, emitter, store, instanceID),
		dispatcher: newDispatcher(registry, rooms, emitter, store, m),
		backplane:  backplane,
	}
}

// Start subscribes to the backplane. When the subscription cannot be made the
// service falls back to local delivery and logs it once.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.presence.reset(ctx)

	err := s.backplane.Subscribe(subCtx, func(env Envelope) {
		s.emitter.receive(subCtx, env)
	})
	if err != nil {
		log.Printf("[realtime] Backplane unavailable, running in single-instance mode: %v", err)
		if cerr := s.backplane.Close(); cerr != nil {
			log.Printf("[realtime] Error closing unavailable backplane: %v", cerr)
		}
		s.backplane = NoopBackplane{}
		s.emitter.backplane = s.backplane
	}
	log.Printf("[realtime] Service started as instance %s", s.emitter.instanceID)
}

// Connect registers an authenticated connection and subscribes it to the
// user's chats. It must be called before any frame from conn is handled.
func (s *Service) Connect(ctx context.Context, conn Conn, id domain.Identity) error {
	if s.closed.Load() {
		return ErrServiceClosed
	}
	if id.UserID == "" {
		return &Error{Kind: KindAuthentication, Message: "missing user identity"}
	}
	s.presence.connect(ctx, conn, id)
	return nil
}

// Disconnect removes conn from the core. It is safe to call more than once
// and must run however the transport closed.
func (s *Service) Disconnect(ctx context.Context, conn Conn) {
	s.presence.disconnect(ctx, conn)
}

// HandleEvent dispatches one raw frame received from conn.
func (s *Service) HandleEvent(ctx context.Context, conn Conn, raw []byte) {
	s.dispatcher.Dispatch(ctx, conn, raw)
}

// PostMessage stores a message sent outside any socket, such as over REST,
// and emits new_message to every member of its chat. Failures are returned
// as *Error.
func (s *Service) PostMessage(ctx context.Context, sender domain.Identity, p InboundPayload) (*domain.Message, error) {
	msg, err := s.dispatcher.postMessage(ctx, sender, p)
	if err != nil {
		return nil, asError(err)
	}
	return msg, nil
}

// NotifyNewChat tells every participant of chat other than creatorID that
// the chat now exists. Participants join its room with join_chat.
func (s *Service) NotifyNewChat(ctx context.Context, chat *domain.Chat, creatorID string) {
	for _, p := range chat.Participants {
		if p.ID == creatorID {
			continue
		}
		s.emitter.EmitToUser(ctx, p.ID, EventNewChat, chat)
	}
}

// SendError reports a failure to conn alone.
func (s *Service) SendError(conn Conn, kind Kind, message string) {
	s.emitter.EmitToConn(conn, EventError, ErrorNotice{Message: message, Code: kind.Code()})
}

// Emitter exposes the emission primitives for notifications that originate
// outside the socket layer.
func (s *Service) Emitter() *Emitter {
	return s.emitter
}

// Registry returns the connection registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Rooms returns the room membership table.
func (s *Service) Rooms() *Rooms {
	return s.rooms
}

// InstanceID returns the id this instance publishes under.
func (s *Service) InstanceID() string {
	return s.emitter.instanceID
}

// Shutdown stops the backplane subscription and closes the backplane.
// Connections are expected to have been disconnected by the transport.
func (s *Service) Shutdown() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	backplane := s.backplane
	s.mu.Unlock()

	if err := backplane.Close(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[realtime] Error closing backplane: %v", err)
		return err
	}
	log.Println("[realtime] Service shut down")
	return nil
}
