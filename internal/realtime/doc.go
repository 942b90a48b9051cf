// Package realtime implements the presence and message fanout core of roomchat.
//
// A Service owns the connection registry, the room membership table, the
// presence tracker and the event dispatcher. Transports hand it authenticated
// connections through Connect, feed it raw frames through HandleEvent and call
// Disconnect when the transport goes away, however it went away. Emissions are
// delivered to local room members and, when a Backplane is configured, relayed
// to the other instances of the service.
package realtime
