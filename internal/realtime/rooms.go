package realtime

import "sync"

// Rooms maps chats to the connections subscribed to their events, with a
// reverse index so a closing connection can leave everything in one step.
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]struct{} // chatID -> connIDs
	byConn map[string]map[string]struct{} // connID -> chatIDs
}

// NewRooms creates an empty membership table.
func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join subscribes connID to chatID. Joining twice is harmless.
func (m *Rooms) Join(chatID, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinLocked(chatID, connID)
}

func (m *Rooms) joinLocked(chatID, connID string) {
	members := m.rooms[chatID]
	if members == nil {
		members = make(map[string]struct{})
		m.rooms[chatID] = members
	}
	members[connID] = struct{}{}

	chats := m.byConn[connID]
	if chats == nil {
		chats = make(map[string]struct{})
		m.byConn[connID] = chats
	}
	chats[chatID] = struct{}{}
}

// BulkJoin subscribes connID to every chat in chatIDs.
func (m *Rooms) BulkJoin(connID string, chatIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chatID := range chatIDs {
		m.joinLocked(chatID, connID)
	}
}

// Leave unsubscribes connID from chatID. Leaving a room the connection is not
// in is harmless.
func (m *Rooms) Leave(chatID, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(chatID, connID)
}

func (m *Rooms) leaveLocked(chatID, connID string) {
	if members, ok := m.rooms[chatID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.rooms, chatID)
		}
	}
	if chats, ok := m.byConn[connID]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(m.byConn, connID)
		}
	}
}

// LeaveAll removes connID from every room and returns the rooms it was in.
func (m *Rooms) LeaveAll(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	chats := m.byConn[connID]
	left := make([]string, 0, len(chats))
	for chatID := range chats {
		left = append(left, chatID)
		if members, ok := m.rooms[chatID]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(m.rooms, chatID)
			}
		}
	}
	delete(m.byConn, connID)
	return left
}

// Members returns a snapshot of the connections subscribed to chatID.
func (m *Rooms) Members(chatID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[chatID]
	result := make([]string, 0, len(members))
	for connID := range members {
		result = append(result, connID)
	}
	return result
}

// RoomsOf returns a snapshot of the chats connID is subscribed to.
func (m *Rooms) RoomsOf(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chats := m.byConn[connID]
	result := make([]string, 0, len(chats))
	for chatID := range chats {
		result = append(result, chatID)
	}
	return result
}

// IsMember reports whether connID is subscribed to chatID.
func (m *Rooms) IsMember(chatID, connID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[chatID][connID]
	return ok
}

// RoomCount returns the number of rooms with at least one member.
func (m *Rooms) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
