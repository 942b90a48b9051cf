package realtime

import (
	"encoding/json"
	"time"

	"github.com/Tyrowin/roomchat/internal/domain"
)

// Inbound event names.
const (
	EventJoinChat       = "join_chat"
	EventLeaveChat      = "leave_chat"
	EventSendMessage    = "send_message"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventReadMessage    = "read_message"
	EventPresenceUpdate = "presence_update"
)

// Outbound event names.
const (
	EventJoinedChat     = "joined_chat"
	EventLeftChat       = "left_chat"
	EventNewMessage     = "new_message"
	EventMessageSent    = "message_sent"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventMessagesRead   = "messages_read"
	EventUserOnline     = "user_online"
	EventUserOffline    = "user_offline"
	EventUserPresence   = "user_presence"
	EventNewChat        = "new_chat"
	EventError          = "error"
)

// Frame is the envelope of every message on the socket, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// InboundPayload is the union of the fields any inbound event may carry.
type InboundPayload struct {
	ChatID     string   `json:"chatId"`
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	FileURL    string   `json:"fileUrl"`
	FileName   string   `json:"fileName"`
	FileSize   int64    `json:"fileSize"`
	ReplyTo    string   `json:"replyTo"`
	MessageIDs []string `json:"messageIds"`
	Status     string   `json:"status"`
}

// ChatRef is the payload of joined_chat and left_chat.
type ChatRef struct {
	ChatID string `json:"chatId"`
}

// MessageSent acknowledges a persisted message to its sender.
type MessageSent struct {
	ChatID    string          `json:"chatId"`
	MessageID string          `json:"messageId"`
	Message   *domain.Message `json:"message"`
}

// TypingNotice is the payload of user_typing and user_stop_typing.
type TypingNotice struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ReadNotice is the payload of messages_read.
type ReadNotice struct {
	ChatID     string    `json:"chatId"`
	UserID     string    `json:"userId"`
	MessageIDs []string  `json:"messageIds"`
	ReadAt     time.Time `json:"readAt"`
}

// PresenceNotice is the payload of user_online, user_offline and user_presence.
type PresenceNotice struct {
	ChatID   string     `json:"chatId"`
	UserID   string     `json:"userId"`
	Username string     `json:"username"`
	Status   string     `json:"status,omitempty"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// ErrorNotice is the payload of the point-to-point error event.
type ErrorNotice struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Event   string `json:"event,omitempty"`
}

// Encode builds the wire form of an outbound event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// Decode parses an inbound frame and its payload.
func Decode(raw []byte) (string, InboundPayload, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return "", InboundPayload{}, err
	}

	var payload InboundPayload
	if len(frame.Data) > 0 && string(frame.Data) != "null" {
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return frame.Event, InboundPayload{}, err
		}
	}
	return frame.Event, payload, nil
}
