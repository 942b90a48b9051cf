package realtime

import (
	"context"
	"log"
	"sync/atomic"
)

// Emitter delivers outbound events to local connections and relays them to
// other instances through the backplane. Emissions to one chat are
// serialized, so every member observes that chat's events in one order.
type Emitter struct {
	registry   *Registry
	rooms      *Rooms
	backplane  Backplane
	instanceID string
	roomLocks  *keyedMutex
	metrics    *metrics

	publishFailing atomic.Bool
}

func newEmitter(registry *Registry, rooms *Rooms, backplane Backplane, instanceID string, m *metrics) *Emitter {
	return &Emitter{
		registry:   registry,
		rooms:      rooms,
		backplane:  backplane,
		instanceID: instanceID,
		roomLocks:  newKeyedMutex(),
		metrics:    m,
	}
}

// EmitToRoom sends an event to every member of chatID, skipping connections
// owned by excludeUser when it is not empty.
func (e *Emitter) EmitToRoom(ctx context.Context, chatID, event string, data any, excludeUser string) {
	payload, err := Encode(event, data)
	if err != nil {
		log.Printf("[realtime] Failed to encode %s for chat %s: %v", event, chatID, err)
		return
	}

	release := e.roomLocks.lock(chatID)
	defer release()

	e.deliverRoom(ctx, chatID, payload, excludeUser)
	e.publish(ctx, Envelope{
		Origin:      e.instanceID,
		Scope:       ScopeRoom,
		Target:      chatID,
		ExcludeUser: excludeUser,
		Payload:     payload,
	})
}

// EmitToUser sends a point-to-point event to every connection of userID on
// any instance.
func (e *Emitter) EmitToUser(ctx context.Context, userID, event string, data any) {
	payload, err := Encode(event, data)
	if err != nil {
		log.Printf("[realtime] Failed to encode %s for user %s: %v", event, userID, err)
		return
	}

	e.deliverUser(ctx, userID, payload)
	e.publish(ctx, Envelope{
		Origin:  e.instanceID,
		Scope:   ScopeUser,
		Target:  userID,
		Payload: payload,
	})
}

// EmitToUserRooms sends one event per room that any local connection of
// userID belongs to. build receives the chat id and returns that room's
// payload.
func (e *Emitter) EmitToUserRooms(ctx context.Context, userID, event string, build func(chatID string) any, excludeUser string) []string {
	chats := e.userRooms(userID)
	for _, chatID := range chats {
		e.EmitToRoom(ctx, chatID, event, build(chatID), excludeUser)
	}
	return chats
}

// EmitToConn sends a point-to-point event to one local connection.
func (e *Emitter) EmitToConn(conn Conn, event string, data any) {
	payload, err := Encode(event, data)
	if err != nil {
		log.Printf("[realtime] Failed to encode %s for connection %s: %v", event, conn.ID(), err)
		return
	}
	if !conn.Send(payload) {
		log.Printf("[realtime] Dropped %s for connection %s", event, conn.ID())
	}
}

func (e *Emitter) userRooms(userID string) []string {
	seen := make(map[string]struct{})
	var chats []string
	for _, entry := range e.registry.ConnectionsOf(userID) {
		for _, chatID := range e.rooms.RoomsOf(entry.Conn.ID()) {
			if _, dup := seen[chatID]; dup {
				continue
			}
			seen[chatID] = struct{}{}
			chats = append(chats, chatID)
		}
	}
	return chats
}

// deliverRoom must be called with the room lock held.
func (e *Emitter) deliverRoom(ctx context.Context, chatID string, payload []byte, excludeUser string) {
	delivered := 0
	for _, connID := range e.rooms.Members(chatID) {
		entry, ok := e.registry.Get(connID)
		if !ok {
			continue
		}
		if excludeUser != "" && entry.UserID == excludeUser {
			continue
		}
		if entry.Conn.Send(payload) {
			delivered++
		}
	}
	e.metrics.delivered(ctx, delivered)
}

func (e *Emitter) deliverUser(ctx context.Context, userID string, payload []byte) {
	delivered := 0
	for _, entry := range e.registry.ConnectionsOf(userID) {
		if entry.Conn.Send(payload) {
			delivered++
		}
	}
	e.metrics.delivered(ctx, delivered)
}

func (e *Emitter) publish(ctx context.Context, env Envelope) {
	if err := e.backplane.Publish(ctx, env); err != nil {
		if e.publishFailing.CompareAndSwap(false, true) {
			log.Printf("[realtime] Backplane publish failed, emissions stay local until it recovers: %v", err)
		}
		return
	}
	if e.publishFailing.CompareAndSwap(true, false) {
		log.Println("[realtime] Backplane publish recovered")
	}
}

// receive re-delivers an envelope from another instance to local members.
// Envelopes this instance published are ignored since they were already
// delivered locally.
func (e *Emitter) receive(ctx context.Context, env Envelope) {
	if env.Origin == e.instanceID {
		return
	}
	e.metrics.relay(ctx, env.Scope)

	switch env.Scope {
	case ScopeRoom:
		release := e.roomLocks.lock(env.Target)
		e.deliverRoom(ctx, env.Target, env.Payload, env.ExcludeUser)
		release()
	case ScopeUser:
		e.deliverUser(ctx, env.Target, env.Payload)
	default:
		log.Printf("[realtime] Ignoring envelope with unknown scope %q from %s", env.Scope, env.Origin)
	}
}
