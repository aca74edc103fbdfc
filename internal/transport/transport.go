// Package transport adapts the duplex WebSocket channel and the one-way
// SSE push stream behind the hub's Sender contract: deliver bytes to one
// connection without blocking the caller.
// Each connection owns a bounded outbound queue; a full queue is reported
// as a delivery failure so a stuck consumer cannot stall fan-out to
// everyone else.
package transport

import "errors"

var (
	// ErrQueueFull means the connection's outbound queue is saturated.
	// The hub treats it as a dead-connection signal.
	ErrQueueFull = errors.New("outbound queue is full")

	// ErrClosed means the connection has already been torn down.
	ErrClosed = errors.New("connection closed")
)

// DefaultQueueSize bounds the per-connection outbound queue.
const DefaultQueueSize = 100
