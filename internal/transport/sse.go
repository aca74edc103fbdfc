package transport

import "sync"

// SSEConn is the outbound half of a server-push stream. The HTTP handler
// owns the actual writer and drains Queue in its event loop; Send only
// enqueues. Closing unblocks the handler via Done.
type SSEConn struct {
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

// NewSSEConn creates the queue for one push stream. queueSize <= 0 selects
// DefaultQueueSize.
func NewSSEConn(queueSize int) *SSEConn {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &SSEConn{
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

// Send enqueues one message without blocking.
func (c *SSEConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.queue <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// Close ends the stream exactly once.
func (c *SSEConn) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

// Queue is drained by the owning HTTP handler.
func (c *SSEConn) Queue() <-chan []byte {
	return c.queue
}

// Done is closed when the stream ends.
func (c *SSEConn) Done() <-chan struct{} {
	return c.done
}
