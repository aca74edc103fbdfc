package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// WSConn wraps one upgraded WebSocket connection with a bounded outbound
// queue drained by a single write pump, which keeps per-connection delivery
// FIFO. Send never blocks; writes happen on the pump goroutine and a write
// error tears the connection down, which surfaces to the hub through the
// read loop and through failed Sends.
type WSConn struct {
	logger *zap.Logger
	conn   *websocket.Conn
	queue  chan []byte
	done   chan struct{}
	once   sync.Once
}

// NewWSConn starts the write pump for an upgraded connection. queueSize <= 0
// selects DefaultQueueSize.
func NewWSConn(logger *zap.Logger, conn *websocket.Conn, queueSize int) *WSConn {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	c := &WSConn{
		logger: logger.Named("transport.ws"),
		conn:   conn,
		queue:  make(chan []byte, queueSize),
		done:   make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send enqueues one frame. Non-blocking: a full queue or a closed
// connection is an error for the caller to act on.
func (c *WSConn) Send(data []byte) error {
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

// Ping sends a control ping. WriteControl is safe to call concurrently
// with the write pump.
func (c *WSConn) Ping() error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Close tears the connection down exactly once.
func (c *WSConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the connection is torn down.
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

func (c *WSConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed, closing connection", zap.Error(err))
				_ = c.Close()
				return
			}
		}
	}
}
