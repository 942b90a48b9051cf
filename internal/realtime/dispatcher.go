package realtime

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Tyrowin/roomchat/internal/domain"
)

// Store is the persistence the core depends on.
type Store interface {
	FindChatsForUser(ctx context.Context, userID string) ([]string, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	CreateMessage(ctx context.Context, msg domain.NewMessage) (*domain.Message, error)
	UpdateLastMessage(ctx context.Context, chatID, messageID string) error
	// MarkRead marks messages authored by others as read by userID and returns
	// the ids that changed. An empty messageIDs means every unread message.
	MarkRead(ctx context.Context, chatID, userID string, messageIDs []string) ([]string, error)
	// AddPresence counts a connection of userID on instanceID and reports
	// whether it is the user's first on any instance.
	AddPresence(ctx context.Context, userID, instanceID string, at time.Time) (bool, error)
	// RemovePresence uncounts a connection and reports whether it was the
	// user's last on any instance.
	RemovePresence(ctx context.Context, userID, instanceID string, at time.Time) (bool, error)
	// ClearPresence drops every connection counted for instanceID.
	ClearPresence(ctx context.Context, instanceID string, at time.Time) error
}

// Dispatcher validates inbound events, performs their side effects and emits
// the resulting outbound events. Every handler runs validate, persist, emit
// in that order and returns at the first failure.
type Dispatcher struct {
	registry *Registry
	rooms    *Rooms
	emitter  *Emitter
	store    Store
	metrics  *metrics
}

func newDispatcher(registry *Registry, rooms *Rooms, emitter *Emitter, store Store, m *metrics) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		rooms:    rooms,
		emitter:  emitter,
		store:    store,
		metrics:  m,
	}
}

// Dispatch handles one raw frame from conn. Failures are reported to conn
// alone through an error event.
func (d *Dispatcher) Dispatch(ctx context.Context, conn Conn, raw []byte) {
	sender, ok := d.registry.Get(conn.ID())
	if !ok {
		log.Printf("[realtime] Dropping frame from unregistered connection %s", conn.ID())
		return
	}

	event, payload, err := Decode(raw)
	if err != nil {
		d.fail(ctx, conn, event, invalid("Malformed event payload"))
		return
	}
	d.metrics.event(ctx, event)

	if err := d.handle(ctx, sender, event, payload); err != nil {
		d.fail(ctx, conn, event, asError(err))
	}
}

func (d *Dispatcher) handle(ctx context.Context, sender Connection, event string, p InboundPayload) error {
	switch event {
	case EventJoinChat:
		return d.joinChat(ctx, sender, p)
	case EventLeaveChat:
		return d.leaveChat(sender, p)
	case EventSendMessage:
		return d.sendMessage(ctx, sender, p)
	case EventTyping:
		return d.typing(ctx, sender, p, EventUserTyping)
	case EventStopTyping:
		return d.typing(ctx, sender, p, EventUserStopTyping)
	case EventReadMessage:
		return d.readMessage(ctx, sender, p)
	case EventPresenceUpdate:
		return d.presenceUpdate(ctx, sender, p)
	case "":
		return invalid("Event name is required")
	default:
		return invalid(fmt.Sprintf("Unknown event %q", event))
	}
}

func (d *Dispatcher) fail(ctx context.Context, conn Conn, event string, err *Error) {
	d.metrics.failure(ctx, event, err.Kind)
	if err.Kind == KindCollaborator {
		log.Printf("[realtime] %s from connection %s failed: %v", event, conn.ID(), err)
	}
	d.emitter.EmitToConn(conn, EventError, ErrorNotice{
		Message: err.Message,
		Code:    err.Kind.Code(),
		Event:   event,
	})
}

func (d *Dispatcher) requireParticipant(ctx context.Context, chatID, userID string) error {
	if chatID == "" {
		return invalid("chatId is required")
	}
	ok, err := d.store.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return collaborator("Failed to verify chat membership", err)
	}
	if !ok {
		return unauthorized(ErrNotParticipant)
	}
	return nil
}

func (d *Dispatcher) joinChat(ctx context.Context, sender Connection, p InboundPayload) error {
	if err := d.requireParticipant(ctx, p.ChatID, sender.UserID); err != nil {
		return err
	}
	d.rooms.Join(p.ChatID, sender.Conn.ID())
	d.emitter.EmitToConn(sender.Conn, EventJoinedChat, ChatRef{ChatID: p.ChatID})
	return nil
}

func (d *Dispatcher) leaveChat(sender Connection, p InboundPayload) error {
	if p.ChatID == "" {
		return invalid("chatId is required")
	}
	d.rooms.Leave(p.ChatID, sender.Conn.ID())
	d.emitter.EmitToConn(sender.Conn, EventLeftChat, ChatRef{ChatID: p.ChatID})
	return nil
}

// validateMessage checks a message payload and builds the record to persist.
func validateMessage(sender domain.Identity, p InboundPayload) (domain.NewMessage, error) {
	if p.ChatID == "" {
		return domain.NewMessage{}, invalid("chatId is required")
	}

	msgType := p.Type
	if msgType == "" {
		msgType = domain.MessageText
	}
	switch msgType {
	case domain.MessageText:
		if strings.TrimSpace(p.Content) == "" {
			return domain.NewMessage{}, invalid("Message content is required")
		}
	case domain.MessageImage, domain.MessageFile:
		if strings.TrimSpace(p.FileURL) == "" {
			return domain.NewMessage{}, invalid("File URL is required")
		}
	default:
		return domain.NewMessage{}, invalid(fmt.Sprintf("Unsupported message type %q", p.Type))
	}

	return domain.NewMessage{
		ChatID:   p.ChatID,
		Sender:   sender,
		Content:  p.Content,
		Type:     msgType,
		FileURL:  p.FileURL,
		FileName: p.FileName,
		FileSize: p.FileSize,
		ReplyTo:  p.ReplyTo,
	}, nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, sender Connection, p InboundPayload) error {
	msg, err := d.postMessage(ctx, domain.Identity{UserID: sender.UserID, Username: sender.Username}, p)
	if err != nil {
		return err
	}
	d.emitter.EmitToConn(sender.Conn, EventMessageSent, MessageSent{
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		Message:   msg,
	})
	return nil
}

// postMessage validates, persists and emits new_message to the whole room,
// sender included.
func (d *Dispatcher) postMessage(ctx context.Context, sender domain.Identity, p InboundPayload) (*domain.Message, error) {
	draft, err := validateMessage(sender, p)
	if err != nil {
		return nil, err
	}
	if err := d.requireParticipant(ctx, p.ChatID, sender.UserID); err != nil {
		return nil, err
	}

	msg, err := d.store.CreateMessage(ctx, draft)
	if err != nil {
		return nil, collaborator("Failed to send message", err)
	}
	// The message is stored; a failed preview update does not fail the send.
	if err := d.store.UpdateLastMessage(ctx, msg.ChatID, msg.ID); err != nil {
		log.Printf("[realtime] Failed to update last message of chat %s: %v", msg.ChatID, err)
	}

	d.emitter.EmitToRoom(ctx, msg.ChatID, EventNewMessage, msg, "")
	return msg, nil
}

func (d *Dispatcher) typing(ctx context.Context, sender Connection, p InboundPayload, outbound string) error {
	if err := d.requireParticipant(ctx, p.ChatID, sender.UserID); err != nil {
		return err
	}
	d.emitter.EmitToRoom(ctx, p.ChatID, outbound, TypingNotice{
		ChatID:   p.ChatID,
		UserID:   sender.UserID,
		Username: sender.Username,
	}, sender.UserID)
	return nil
}

func (d *Dispatcher) readMessage(ctx context.Context, sender Connection, p InboundPayload) error {
	if err := d.requireParticipant(ctx, p.ChatID, sender.UserID); err != nil {
		return err
	}

	ids, err := d.store.MarkRead(ctx, p.ChatID, sender.UserID, p.MessageIDs)
	if err != nil {
		return collaborator("Failed to mark messages as read", err)
	}
	if ids == nil {
		ids = []string{}
	}

	d.emitter.EmitToRoom(ctx, p.ChatID, EventMessagesRead, ReadNotice{
		ChatID:     p.ChatID,
		UserID:     sender.UserID,
		MessageIDs: ids,
		ReadAt:     time.Now(),
	}, sender.UserID)
	return nil
}

// presenceUpdate relays the status string as given; unknown values pass
// through untouched.
func (d *Dispatcher) presenceUpdate(ctx context.Context, sender Connection, p InboundPayload) error {
	d.emitter.EmitToUserRooms(ctx, sender.UserID, EventUserPresence, func(chatID string) any {
		return PresenceNotice{
			ChatID:   chatID,
			UserID:   sender.UserID,
			Username: sender.Username,
			Status:   p.Status,
		}
	}, sender.UserID)
	return nil
}
