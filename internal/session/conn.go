package session

import "github.com/cory-johannsen/jobwars/internal/protocol"

// Conn is a live client connection as seen by the hub. Implementations must
// be safe to call from any goroutine.
type Conn interface {
	// ID is unique among all connections for the life of the process.
	ID() string
	// Send queues msg for delivery. It never blocks; it reports false when
	// the message was dropped because the connection is closed or backed up.
	Send(msg protocol.Outbound) bool
	// Close flushes what is queued and closes the connection. The transport
	// then reports the disconnect like any other.
	Close()
}
