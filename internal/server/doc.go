// Package server implements the HTTP and WebSocket surface of roomchat.
//
// The implementation is organized into specialized files for configuration,
// the hub, clients, authentication, routing, and REST and WebSocket handlers.
// Room fanout, presence and event dispatch live in the realtime package; this
// package only moves frames between sockets and that core.
package server
