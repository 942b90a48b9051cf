// Package server defines the REST request and response payloads and utility
// helpers that are reused across handlers, clients and the hub.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/Tyrowin/roomchat/internal/domain"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createChatRequest struct {
	ParticipantIDs []string `json:"participantIds"`
	Name           string   `json:"name,omitempty"`
}

type postMessageRequest struct {
	Content  string `json:"content"`
	Type     string `json:"type,omitempty"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
	ReplyTo  string `json:"replyTo,omitempty"`
}

type chatsResponse struct {
	Chats []domain.Chat `json:"chats"`
}

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[server] Error writing JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Malformed JSON body")
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
