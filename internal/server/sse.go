package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
	"github.com/lumenhq/beacon/internal/hub"
	"github.com/lumenhq/beacon/internal/transport"
)

// handleSSE serves the one-way push stream. The supplied userId doubles as
// the connection id when present so callers can address the stream
// directly; otherwise a fresh id is generated. Inbound liveness arrives
// out-of-band through /api/touch.
func (s *Server) handleSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache, no-transform")
	c.Writer.Header().Set("Connection", "keep-alive")

	userID := c.Query("userId")
	id := userID
	if id == "" {
		id = uuid.New().String()
	}

	conn := transport.NewSSEConn(s.cfg.SSE.QueueSize)
	_, err := s.hub.Register(id, userID, c.Query("username"), c.Query("email"), cnst.TransportSSE, conn)
	if err != nil {
		c.String(http.StatusConflict, "connection already exists")
		return
	}
	s.sendConnected(id)

	defer func() {
		s.hub.Remove(id, hub.ReasonDisconnect)
		_ = conn.Close()
	}()

	for {
		select {
		case data := <-conn.Queue():
			if _, err := fmt.Fprintf(c.Writer, "event: message\ndata: %s\n\n", data); err != nil {
				s.logger.Debug("SSE write failed", zap.String("id", id), zap.Error(err))
				return
			}
			c.Writer.Flush()
		case <-conn.Done():
			return
		case <-c.Request.Context().Done():
			return
		case <-s.shutdownCh:
			return
		}
	}
}
