package realtime

import (
	"sync"
	"time"
)

// Conn is a live client transport session as seen by the core.
// Send must not block; it returns false when the payload was not queued.
type Conn interface {
	ID() string
	Send(payload []byte) bool
}

// Connection is a registry entry for one physical connection.
type Connection struct {
	Conn      Conn
	UserID    string
	Username  string
	CreatedAt time.Time
}

// Registry tracks which connections belong to which user. A user may hold any
// number of connections at once.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	byUser map[string]map[string]*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Register adds conn for userID and reports whether it is the user's first
// live connection. Registering the same connection twice is a no-op that
// reports false.
func (r *Registry) Register(userID string, conn Conn, username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID()]; exists {
		return false
	}

	entry := &Connection{
		Conn:      conn,
		UserID:    userID,
		Username:  username,
		CreatedAt: time.Now(),
	}
	r.conns[conn.ID()] = entry

	userConns := r.byUser[userID]
	first := len(userConns) == 0
	if userConns == nil {
		userConns = make(map[string]*Connection)
		r.byUser[userID] = userConns
	}
	userConns[conn.ID()] = entry
	return first
}

// Unregister removes the connection and reports its owner and whether it was
// the owner's last connection. The lookup, removal and emptiness check happen
// under one lock so concurrent disconnects of the same user cannot both
// observe "not last" or both observe "last".
func (r *Registry) Unregister(connID string) (entry Connection, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found, exists := r.conns[connID]
	if !exists {
		return Connection{}, false, false
	}
	delete(r.conns, connID)

	if userConns, exists := r.byUser[found.UserID]; exists {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(r.byUser, found.UserID)
			last = true
		}
	}
	return *found, last, true
}

// Get returns the entry for connID.
func (r *Registry) Get(connID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	return *entry, true
}

// ConnectionsOf returns a snapshot of userID's live connections.
func (r *Registry) ConnectionsOf(userID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns := r.byUser[userID]
	result := make([]Connection, 0, len(userConns))
	for _, entry := range userConns {
		result = append(result, *entry)
	}
	return result
}

// IsOnline reports whether userID holds at least one connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
