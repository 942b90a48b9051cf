// Package server wires HTTP handlers into a ServeMux for the roomchat
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application routes.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("GET /test", TestPageHandler)

	mux.HandleFunc("POST /api/auth/register", s.RegisterHandler)
	mux.HandleFunc("POST /api/auth/login", s.LoginHandler)
	mux.HandleFunc("GET /api/users/me", s.requireAuth(s.MeHandler))

	mux.HandleFunc("GET /api/chats", s.requireAuth(s.ListChatsHandler))
	mux.HandleFunc("POST /api/chats", s.requireAuth(s.CreateChatHandler))
	mux.HandleFunc("GET /api/chats/{id}/messages", s.requireAuth(s.ListMessagesHandler))
	mux.HandleFunc("POST /api/chats/{id}/messages", s.requireAuth(s.PostMessageHandler))
	return mux
}
