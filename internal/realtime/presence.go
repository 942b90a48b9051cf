package realtime

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/domain"
)

// Presence status values carried by user_online and user_offline.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Presence turns connection counts into online/offline edges. The counts
// live in the store so every instance sharing it agrees on a user's first
// and last connection. Transitions of one user are serialized locally so a
// quick reconnect can never see its online edge overtaken by the preceding
// offline edge. When the store cannot count, the local registry decides.
type Presence struct {
	registry   *Registry
	rooms      *Rooms
	emitter    *Emitter
	store      Store
	instanceID string
	userLocks  *keyedMutex
}

func newPresence(registry *Registry, rooms *Rooms, emitter *Emitter, store Store, instanceID string) *Presence {
	return &Presence{
		registry:   registry,
		rooms:      rooms,
		emitter:    emitter,
		store:      store,
		instanceID: instanceID,
		userLocks:  newKeyedMutex(),
	}
}

// reset drops the counts a previous run of this instance left behind.
func (p *Presence) reset(ctx context.Context) {
	if err := p.store.ClearPresence(ctx, p.instanceID, time.Now()); err != nil {
		log.Printf("[realtime] Failed to clear stale presence of instance %s: %v", p.instanceID, err)
	}
}

// connect registers conn, bulk-joins it to the user's chats and, on the
// user's first connection anywhere, marks the user online in every one of
// them.
func (p *Presence) connect(ctx context.Context, conn Conn, id domain.Identity) {
	release := p.userLocks.lock(id.UserID)
	defer release()

	localFirst := p.registry.Register(id.UserID, conn, id.Username)
	now := time.Now()

	var (
		g         errgroup.Group
		chats     []string
		chatsErr  error
		first     bool
		onlineErr error
	)
	g.Go(func() error {
		chats, chatsErr = p.store.FindChatsForUser(ctx, id.UserID)
		return chatsErr
	})
	g.Go(func() error {
		first, onlineErr = p.store.AddPresence(ctx, id.UserID, p.instanceID, now)
		return onlineErr
	})
	_ = g.Wait()

	if chatsErr != nil {
		log.Printf("[realtime] Failed to load chats for user %s: %v", id.UserID, chatsErr)
		p.emitter.EmitToConn(conn, EventError, ErrorNotice{
			Message: "Failed to load your chats",
			Code:    KindCollaborator.Code(),
		})
	}
	p.rooms.BulkJoin(conn.ID(), chats)
	if onlineErr != nil {
		log.Printf("[realtime] Failed to count connection of user %s: %v", id.UserID, onlineErr)
		first = localFirst
	}
	log.Printf("[realtime] Connection %s registered for %s (%d chats, first=%t)", conn.ID(), id.Username, len(chats), first)

	if !first {
		return
	}
	for _, chatID := range chats {
		p.emitter.EmitToRoom(ctx, chatID, EventUserOnline, PresenceNotice{
			ChatID:   chatID,
			UserID:   id.UserID,
			Username: id.Username,
			Status:   StatusOnline,
		}, id.UserID)
	}
}

// disconnect removes conn from its rooms and the registry and, when it was
// the user's last connection anywhere, marks the user offline in the rooms
// it left.
func (p *Presence) disconnect(ctx context.Context, conn Conn) {
	current, ok := p.registry.Get(conn.ID())
	if !ok {
		return
	}

	release := p.userLocks.lock(current.UserID)
	defer release()

	chats := p.rooms.LeaveAll(conn.ID())
	entry, localLast, ok := p.registry.Unregister(conn.ID())
	if !ok {
		return
	}

	lastSeen := time.Now()
	last, err := p.store.RemovePresence(ctx, entry.UserID, p.instanceID, lastSeen)
	if err != nil {
		log.Printf("[realtime] Failed to uncount connection of user %s: %v", entry.UserID, err)
		last = localLast
	}
	log.Printf("[realtime] Connection %s unregistered for %s (last=%t)", conn.ID(), entry.Username, last)
	if !last {
		return
	}

	for _, chatID := range chats {
		p.emitter.EmitToRoom(ctx, chatID, EventUserOffline, PresenceNotice{
			ChatID:   chatID,
			UserID:   entry.UserID,
			Username: entry.Username,
			Status:   StatusOffline,
			LastSeen: &lastSeen,
		}, entry.UserID)
	}
}
