// Package server coordinates client registration, pump lifecycle, and
// connection cleanup for the roomchat WebSocket system via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/realtime"
)

// Hub owns the goroutines of every WebSocket client. Fanout to rooms and
// users is done by the realtime service; the hub starts each client's
// pumps, tracks live clients, and closes them on shutdown.
type Hub struct {
	service    *realtime.Service
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub that hands client events to service.
func NewHub(service *realtime.Service) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		service:    service,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// ClientCount returns the number of live clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// registerClient hands client to the Run loop. It returns false when the
// hub is shutting down.
func (h *Hub) registerClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// unregisterClient removes client. After shutdown the Run loop is gone, so
// the client is closed directly.
func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		client.close()
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine
// as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("[server] Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("[server] Client %s registered from %s as %s. Total clients: %d", client.id, client.addr, client.identity.Username, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump(h.ctx)
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			clientCount := len(h.clients)
			h.mutex.Unlock()

			if ok {
				client.close()
				log.Printf("[server] Client %s unregistered from %s. Total clients: %d", client.id, client.addr, clientCount)
			}
		}
	}
}

// shutdownClients closes every client transport; each read pump then runs
// its own cleanup.
func (h *Hub) shutdownClients() {
	log.Println("[server] Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("[server] Error closing client connection from %s: %v", client.addr, err)
		}
	}

	log.Printf("[server] Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("[server] Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[server] Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("[server] Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
