// Package server implements the HTTP server functionality for the roomchat server.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/domain"
	"github.com/Tyrowin/roomchat/internal/realtime"
)

// ChatStore is the persistence the REST handlers read and write.
type ChatStore interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListChats(ctx context.Context, userID string) ([]domain.Chat, error)
	CreateChat(ctx context.Context, creatorID string, participantIDs []string, name string) (*domain.Chat, bool, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	ListMessages(ctx context.Context, chatID string, limit int, before string) ([]domain.Message, error)
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Service  *realtime.Service
	Accounts *auth.Accounts
	Store    ChatStore
}

// Server serves the REST API and the WebSocket endpoint.
type Server struct {
	cfg      Config
	hub      *Hub
	service  *realtime.Service
	accounts *auth.Accounts
	store    ChatStore
	origins  *originPolicy
	upgrader websocket.Upgrader
	http     *http.Server
}

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second
)

// New creates a Server. Call StartHub before serving requests.
func New(cfg Config, deps Deps) *Server {
	cfg = cfg.sanitize()
	s := &Server{
		cfg:      cfg,
		hub:      NewHub(deps.Service),
		service:  deps.Service,
		accounts: deps.Accounts,
		store:    deps.Store,
		origins:  newOriginPolicy(cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	s.http = &http.Server{
		Addr:         cfg.Port,
		Handler:      s.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// StartHub starts the hub in a separate goroutine.
func (s *Server) StartHub() {
	go s.hub.Run()
	log.Println("[server] Hub started and ready to manage WebSocket connections")
}

// Hub returns the hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves the routes on the configured port. It returns
// http.ErrServerClosed once Shutdown has been called.
func (s *Server) ListenAndServe() error {
	log.Printf("[server] Listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests, then closes every socket through the
// hub. Each step waits at most timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	log.Println("[server] Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpErr := s.http.Shutdown(ctx)
	if httpErr != nil {
		log.Printf("[server] HTTP server shutdown error: %v", httpErr)
	}
	return errors.Join(httpErr, s.hub.Shutdown(timeout))
}
