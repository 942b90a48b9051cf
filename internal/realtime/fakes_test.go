package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/domain"
)

// fakeConn records every frame queued to it.
type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames []Frame
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) bool {
	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return false
	}
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	return true
}

func (c *fakeConn) events(name string) []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []Frame
	for _, f := range c.frames {
		if f.Event == name {
			result = append(result, f)
		}
	}
	return result
}

func (c *fakeConn) count(name string) int {
	return len(c.events(name))
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func decodeData[T any](t *testing.T, f Frame) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(f.Data, &v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", f.Event, err)
	}
	return v
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	payload, err := Encode(event, data)
	if err != nil {
		t.Fatalf("Failed to encode %s: %v", event, err)
	}
	return payload
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu           sync.Mutex
	participants map[string]map[string]bool
	messages     []domain.Message
	reads        map[string]map[string]bool
	online       map[string]bool
	onlineCalls  map[string][]bool
	sessions     map[string]map[string]int
	cleared      []string
	lastMessage  map[string]string
	nextID       int

	errCreate      error
	errParticipant error
	errChats       error
	errPresence    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants: make(map[string]map[string]bool),
		reads:        make(map[string]map[string]bool),
		online:       make(map[string]bool),
		onlineCalls:  make(map[string][]bool),
		sessions:     make(map[string]map[string]int),
		lastMessage:  make(map[string]string),
	}
}

func (s *fakeStore) addChat(chatID string, userIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make(map[string]bool)
	for _, id := range userIDs {
		members[id] = true
	}
	s.participants[chatID] = members
}

func (s *fakeStore) FindChatsForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errChats != nil {
		return nil, s.errChats
	}
	var chats []string
	for chatID, members := range s.participants {
		if members[userID] {
			chats = append(chats, chatID)
		}
	}
	return chats, nil
}

func (s *fakeStore) IsParticipant(_ context.Context, chatID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errParticipant != nil {
		return false, s.errParticipant
	}
	return s.participants[chatID][userID], nil
}

func (s *fakeStore) CreateMessage(_ context.Context, msg domain.NewMessage) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errCreate != nil {
		return nil, s.errCreate
	}
	s.nextID++
	created := domain.Message{
		ID:        fmt.Sprintf("m%d", s.nextID),
		ChatID:    msg.ChatID,
		Sender:    msg.Sender,
		Content:   msg.Content,
		Type:      msg.Type,
		FileURL:   msg.FileURL,
		FileName:  msg.FileName,
		FileSize:  msg.FileSize,
		ReplyTo:   msg.ReplyTo,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, created)
	return &created, nil
}

func (s *fakeStore) UpdateLastMessage(_ context.Context, chatID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMessage[chatID] = messageID
	return nil
}

func (s *fakeStore) MarkRead(_ context.Context, chatID, userID string, messageIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}

	var marked []string
	for _, m := range s.messages {
		if m.ChatID != chatID || m.Sender.UserID == userID {
			continue
		}
		if len(wanted) > 0 && !wanted[m.ID] {
			continue
		}
		if s.reads[m.ID][userID] {
			continue
		}
		if s.reads[m.ID] == nil {
			s.reads[m.ID] = make(map[string]bool)
		}
		s.reads[m.ID][userID] = true
		marked = append(marked, m.ID)
	}
	return marked, nil
}

func (s *fakeStore) AddPresence(_ context.Context, userID, instanceID string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errPresence != nil {
		return false, s.errPresence
	}
	if s.sessions[userID] == nil {
		s.sessions[userID] = make(map[string]int)
	}
	s.sessions[userID][instanceID]++
	if s.totalLocked(userID) != 1 {
		return false, nil
	}
	s.setOnlineLocked(userID, true)
	return true, nil
}

func (s *fakeStore) RemovePresence(_ context.Context, userID, instanceID string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errPresence != nil {
		return false, s.errPresence
	}
	if s.sessions[userID][instanceID] <= 0 {
		return false, nil
	}
	s.sessions[userID][instanceID]--
	if s.sessions[userID][instanceID] == 0 {
		delete(s.sessions[userID], instanceID)
	}
	if s.totalLocked(userID) != 0 {
		return false, nil
	}
	s.setOnlineLocked(userID, false)
	return true, nil
}

func (s *fakeStore) ClearPresence(_ context.Context, instanceID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, instanceID)
	if s.errPresence != nil {
		return s.errPresence
	}
	for userID, perInstance := range s.sessions {
		if _, ok := perInstance[instanceID]; !ok {
			continue
		}
		delete(perInstance, instanceID)
		if s.totalLocked(userID) == 0 {
			s.setOnlineLocked(userID, false)
		}
	}
	return nil
}

func (s *fakeStore) totalLocked(userID string) int {
	total := 0
	for _, n := range s.sessions[userID] {
		total += n
	}
	return total
}

func (s *fakeStore) setOnlineLocked(userID string, online bool) {
	s.online[userID] = online
	s.onlineCalls[userID] = append(s.onlineCalls[userID], online)
}

func (s *fakeStore) clearedInstances() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cleared...)
}

func (s *fakeStore) onlineHistory(userID string) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.onlineCalls[userID]...)
}

// memoryBus connects memoryBackplanes the way a shared broker would,
// delivering synchronously to every subscriber including the publisher.
type memoryBus struct {
	mu   sync.RWMutex
	subs []func(Envelope)
}

type memoryBackplane struct {
	bus *memoryBus
}

func (b *memoryBackplane) Publish(_ context.Context, env Envelope) error {
	b.bus.mu.RLock()
	subs := append([]func(Envelope){}, b.bus.subs...)
	b.bus.mu.RUnlock()
	for _, deliver := range subs {
		deliver(env)
	}
	return nil
}

func (b *memoryBackplane) Subscribe(_ context.Context, deliver func(Envelope)) error {
	b.bus.mu.Lock()
	b.bus.subs = append(b.bus.subs, deliver)
	b.bus.mu.Unlock()
	return nil
}

func (b *memoryBackplane) Close() error { return nil }

var errBrokerDown = errors.New("broker down")

// brokenBackplane fails every call, as an unreachable broker would.
type brokenBackplane struct {
	mu        sync.Mutex
	published int
}

func (b *brokenBackplane) Publish(context.Context, Envelope) error {
	b.mu.Lock()
	b.published++
	b.mu.Unlock()
	return errBrokerDown
}

func (b *brokenBackplane) Subscribe(context.Context, func(Envelope)) error { return errBrokerDown }

func (b *brokenBackplane) Close() error { return nil }

func (b *brokenBackplane) publishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published
}

// newTestService builds and starts a single-instance service.
func newTestService(t *testing.T, store *fakeStore) *Service {
	t.Helper()
	svc := NewService(store, Options{})
	svc.Start(context.Background())
	t.Cleanup(func() { _ = svc.Shutdown() })
	return svc
}

func connect(t *testing.T, svc *Service, connID, userID, username string) *fakeConn {
	t.Helper()
	conn := newFakeConn(connID)
	if err := svc.Connect(context.Background(), conn, domain.Identity{UserID: userID, Username: username}); err != nil {
		t.Fatalf("Connect(%s) error = %v", connID, err)
	}
	return conn
}
