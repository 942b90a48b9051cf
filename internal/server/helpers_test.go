package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/domain"
	"github.com/Tyrowin/roomchat/internal/realtime"
	"github.com/Tyrowin/roomchat/internal/store"
)

const testOrigin = "http://localhost:8080"

var testIdentity = domain.Identity{UserID: "user-1", Username: "tester"}

// testEnv is a full server backed by an in-memory database.
type testEnv struct {
	srv     *Server
	http    *httptest.Server
	service *realtime.Service
	store   *store.Store
}

func newTestEnv(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()

	db, err := store.Open(store.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	service := realtime.NewService(db, realtime.Options{InstanceID: "test"})
	service.Start(context.Background())

	authCfg := auth.Config{Secret: "test-secret", Issuer: "roomchat-test", TTL: time.Hour, BcryptCost: bcrypt.MinCost}
	accounts := auth.NewAccounts(db, auth.NewPasswordHasher(authCfg.BcryptCost), auth.NewTokenManager(authCfg))

	cfg := DefaultConfig()
	if customize != nil {
		customize(&cfg)
	}
	srv := New(cfg, Deps{Service: service, Accounts: accounts, Store: db})
	srv.StartHub()
	httpSrv := httptest.NewServer(srv.Routes())

	t.Cleanup(func() {
		httpSrv.Close()
		_ = srv.Hub().Shutdown(5 * time.Second)
		_ = service.Shutdown()
		_ = db.Close()
	})

	return &testEnv{srv: srv, http: httpSrv, service: service, store: db}
}

func (e *testEnv) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws?token=" + token
}

// do sends a JSON request and decodes a JSON response into out when given.
func (e *testEnv) do(t *testing.T, method, path, token string, body, out any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.http.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func (e *testEnv) register(t *testing.T, username string) auth.Session {
	t.Helper()
	var session auth.Session
	resp := e.do(t, http.MethodPost, "/api/auth/register", "", credentialsRequest{Username: username, Password: "password123"}, &session)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}
	return session
}

func (e *testEnv) createChat(t *testing.T, token string, participantIDs ...string) domain.Chat {
	t.Helper()
	var chat domain.Chat
	resp := e.do(t, http.MethodPost, "/api/chats", token, createChatRequest{ParticipantIDs: participantIDs}, &chat)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		t.Fatalf("create chat: status %d", resp.StatusCode)
	}
	return chat
}

// dial opens an authenticated socket and waits until the realtime core has
// registered it and joined it to the user's chats.
func (e *testEnv) dial(t *testing.T, session auth.Session) *websocket.Conn {
	t.Helper()

	known := make(map[string]bool)
	for _, c := range e.service.Registry().ConnectionsOf(session.User.ID) {
		known[c.Conn.ID()] = true
	}
	chats, err := e.store.FindChatsForUser(context.Background(), session.User.ID)
	if err != nil {
		t.Fatalf("Failed to load chats: %v", err)
	}

	conn, resp, err := dialWebSocket(e.wsURL(session.Token), testOrigin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	waitFor(t, func() bool {
		for _, c := range e.service.Registry().ConnectionsOf(session.User.ID) {
			if known[c.Conn.ID()] {
				continue
			}
			rooms := e.service.Rooms().RoomsOf(c.Conn.ID())
			return len(rooms) == len(chats)
		}
		return false
	})
	return conn
}

func dialWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return dialer.Dial(url, header)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := realtime.Encode(event, data)
	if err != nil {
		t.Fatalf("Failed to encode %s: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// expectEvent reads frames until one named event arrives, skipping others.
func expectEvent(t *testing.T, conn *websocket.Conn, event string) realtime.Frame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		var frame realtime.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("Failed waiting for %s: %v", event, err)
		}
		if frame.Event == event {
			return frame
		}
	}
}

// expectNoEvent fails if a frame named event arrives within timeout.
func expectNoEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		var frame realtime.Frame
		err := conn.ReadJSON(&frame)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return
			}
			t.Fatalf("Unexpected error while waiting for absence of %s: %v", event, err)
		}
		if frame.Event == event {
			t.Fatalf("Expected no %s, but received one: %s", event, frame.Data)
		}
	}
}

func decodeFrame[T any](t *testing.T, f realtime.Frame) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(f.Data, &v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", f.Event, err)
	}
	return v
}
