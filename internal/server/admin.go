package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenhq/beacon/internal/event"
)

// notifyRequest is the administrative fan-out request. Exactly one
// targeting mode applies: the broadcast flag wins, then clientId, then the
// recipients list. A request with no targeting at all broadcasts, which is
// the legacy-caller path.
type notifyRequest struct {
	Broadcast  bool              `json:"broadcast,omitempty"`
	ClientID   string            `json:"clientId,omitempty"`
	Recipients []string          `json:"recipients,omitempty"`
	Type       string            `json:"type"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type notifyResponse struct {
	Delivered int      `json:"delivered"`
	Resolved  int      `json:"resolved"`
	Misses    []string `json:"misses,omitempty"`
	Broadcast bool     `json:"broadcast,omitempty"`
}

// handleNotify invokes the fan-out engine on behalf of external callers.
// Recipients are resolved connection-id-first, then user-id. When
// recipients were supplied but none resolved, nothing is delivered — the
// engine never widens a targeted send into a broadcast.
func (s *Server) handleNotify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type is required"})
		return
	}

	ev := event.NewRaw(req.Type, req.Data, req.Metadata)

	switch {
	case req.Broadcast:
		c.JSON(http.StatusOK, notifyResponse{
			Delivered: s.hub.Broadcast(ev),
			Broadcast: true,
		})
	case req.ClientID != "":
		resp := notifyResponse{}
		if s.hub.SendToConnection(req.ClientID, ev) {
			resp.Delivered = 1
			resp.Resolved = 1
		} else {
			resp.Misses = []string{req.ClientID}
		}
		c.JSON(http.StatusOK, resp)
	case len(req.Recipients) > 0:
		ids, misses := s.hub.Resolve(req.Recipients)
		c.JSON(http.StatusOK, notifyResponse{
			Delivered: s.hub.SendToConnections(ids, ev),
			Resolved:  len(ids),
			Misses:    misses,
		})
	default:
		c.JSON(http.StatusOK, notifyResponse{
			Delivered: s.hub.Broadcast(ev),
			Broadcast: true,
		})
	}
}
