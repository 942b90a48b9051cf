// Package server authenticates REST and WebSocket requests with bearer tokens.
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/Tyrowin/roomchat/internal/domain"
)

type identityKey struct{}

func withIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

// bearerToken returns the token from the Authorization header, falling back
// to the token query parameter since browsers can not set headers on
// WebSocket upgrades.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func (s *Server) authenticate(r *http.Request) (domain.Identity, bool) {
	token := bearerToken(r)
	if token == "" {
		return domain.Identity{}, false
	}
	id, err := s.accounts.Authenticate(token)
	if err != nil {
		return domain.Identity{}, false
	}
	return id, true
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid token")
			return
		}
		next(w, r.WithContext(withIdentity(r.Context(), id)))
	}
}
