// Package transport declares the pluggable transport capability sets: a
// server side that can start and stop, and a client side that can start,
// stop and deliver incoming records. The server interface has no publish
// or join/leave methods of its own; each server implementation joins and
// leaves sessions, and receives their records, through the Registry it is
// constructed with. Concrete transports (TCP, WebSocket)
// implement these without any shared base type.
package transport

import (
	"context"

	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// ServerTransport accepts client connections, reads each client's join
// descriptor, and delivers SyncRecord updates for the lifetime of the
// connection.
type ServerTransport interface {
	// Start begins accepting connections on a background goroutine. It
	// returns once the listener is bound; Start does not block.
	Start(ctx context.Context) error
	// Stop closes the listener and all active connections.
	Stop() error
}

// ClientTransport connects to a single server, sends the local join
// descriptor, and invokes onRecord for every record received, in order,
// until Stop is called or the connection fails.
type ClientTransport interface {
	Start(ctx context.Context, desc syncrecord.JoinDescriptor, onRecord func(syncrecord.Record)) error
	Stop() error
}
