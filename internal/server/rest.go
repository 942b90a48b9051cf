// Package server implements the REST API for accounts, chats and message
// history.
package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/domain"
	"github.com/Tyrowin/roomchat/internal/realtime"
	"github.com/Tyrowin/roomchat/internal/store"
)

// RegisterHandler creates an account and returns it with a token.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := s.accounts.Register(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, session)
	case errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
	case errors.Is(err, store.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		log.Printf("[server] Registration failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to register")
	}
}

// LoginHandler verifies credentials and returns the user with a token.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := s.accounts.Login(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, session)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		log.Printf("[server] Login failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to log in")
	}
}

// MeHandler returns the authenticated user.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	user, err := s.store.GetUser(r.Context(), id.UserID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListChatsHandler returns the chats of the authenticated user.
func (s *Server) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	chats, err := s.store.ListChats(r.Context(), id.UserID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatsResponse{Chats: chats})
}

// CreateChatHandler creates a chat and notifies the other participants with
// new_chat. An existing direct chat between the same pair is returned with
// 200 instead of 201 and no notification.
func (s *Server) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req createChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chat, created, err := s.store.CreateChat(r.Context(), id.UserID, req.ParticipantIDs, req.Name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, chat)
		return
	}

	s.service.NotifyNewChat(r.Context(), chat, id.UserID)
	writeJSON(w, http.StatusCreated, chat)
}

// ListMessagesHandler returns a page of a chat's history to a participant.
func (s *Server) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	chatID := r.PathValue("id")

	ok, err := s.store.IsParticipant(r.Context(), chatID, id.UserID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, realtime.KindAuthorization.Code(), realtime.ErrNotParticipant.Error())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid_payload", "limit must be a positive integer")
			return
		}
	}

	messages, err := s.store.ListMessages(r.Context(), chatID, limit, r.URL.Query().Get("before"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: messages})
}

// PostMessageHandler stores a message and emits new_message to the chat's
// connected members.
func (s *Server) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req postMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := s.service.PostMessage(r.Context(), id, realtime.InboundPayload{
		ChatID:   r.PathValue("id"),
		Content:  req.Content,
		Type:     req.Type,
		FileURL:  req.FileURL,
		FileName: req.FileName,
		FileSize: req.FileSize,
		ReplyTo:  req.ReplyTo,
	})
	if err != nil {
		writeRealtimeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrInvalidParticipants):
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
	default:
		log.Printf("[server] Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}

func writeRealtimeError(w http.ResponseWriter, err error) {
	var rtErr *realtime.Error
	if !errors.As(err, &rtErr) {
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal error")
		return
	}

	status := http.StatusInternalServerError
	switch rtErr.Kind {
	case realtime.KindAuthentication:
		status = http.StatusUnauthorized
	case realtime.KindAuthorization:
		status = http.StatusForbidden
	case realtime.KindValidation:
		status = http.StatusBadRequest
	case realtime.KindRateLimited:
		status = http.StatusTooManyRequests
	case realtime.KindCollaborator:
		log.Printf("[server] Posting message failed: %v", rtErr)
	}
	writeError(w, status, rtErr.Kind.Code(), rtErr.Message)
}
