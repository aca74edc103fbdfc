package server

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
	"github.com/lumenhq/beacon/internal/event"
	"github.com/lumenhq/beacon/internal/hub"
	"github.com/lumenhq/beacon/internal/transport"
)

// inboundMessage is the envelope clients send on the duplex channel.
type inboundMessage struct {
	Type     string            `json:"type"`
	Room     string            `json:"room,omitempty"`
	Channels []string          `json:"channels,omitempty"`
	Message  json.RawMessage   `json:"message,omitempty"`
	Data     json.RawMessage   `json:"data,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// messagePayload is the fan-out form of a send-message request.
type messagePayload struct {
	Room    string          `json:"room"`
	Message json.RawMessage `json:"message"`
	From    messageSender   `json:"from"`
}

type messageSender struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name,omitempty"`
}

// handleWS upgrades the request and runs the per-connection inbound loop.
// Identity comes from optional userId/username/email query parameters;
// session issuance itself is an upstream concern.
func (s *Server) handleWS(c *gin.Context) {
	raw, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	id := uuid.New().String()
	ws := transport.NewWSConn(s.logger, raw, s.cfg.WebSocket.QueueSize)
	_, err = s.hub.Register(id, c.Query("userId"), c.Query("username"), c.Query("email"), cnst.TransportWebSocket, ws)
	if err != nil {
		// Duplicate id collision; refuse at the transport level.
		_ = ws.Close()
		return
	}
	s.sendConnected(id)

	// The read side stays open as long as the peer answers the periodic
	// control pings, so the deadline is two heartbeat intervals. Pongs are
	// transport keepalive only; liveness is driven by inbound messages.
	readWait := 2 * s.cfg.WebSocket.HeartbeatInterval
	_ = raw.SetReadDeadline(time.Now().Add(readWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(readWait))
	})

	defer func() {
		s.hub.Remove(id, hub.ReasonDisconnect)
		_ = ws.Close()
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read error", zap.String("id", id), zap.Error(err))
			}
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(readWait))
		s.handleInbound(id, data)
	}
}

// handleInbound dispatches one duplex-channel message. Every inbound
// message counts as liveness activity, malformed ones included.
func (s *Server) handleInbound(id string, data []byte) {
	s.hub.Touch(id)

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("malformed inbound message", zap.String("id", id), zap.Error(err))
		return
	}

	switch msg.Type {
	case cnst.InboundPing:
		s.reply(id, cnst.EventPong, nil)
	case cnst.InboundJoinRoom:
		s.hub.Join(id, msg.Room)
		s.reply(id, cnst.EventRoomJoined, gin.H{"room": msg.Room})
	case cnst.InboundLeaveRoom:
		s.hub.Leave(id, msg.Room)
		s.reply(id, cnst.EventRoomLeft, gin.H{"room": msg.Room})
	case cnst.InboundSubscribe:
		for _, ch := range msg.Channels {
			s.hub.Join(id, ch)
		}
		s.reply(id, cnst.EventSubscribed, gin.H{"channels": msg.Channels})
	case cnst.InboundSendMessage:
		s.fanOutMessage(id, msg)
	case "":
		s.logger.Debug("inbound message without type", zap.String("id", id))
	default:
		// Custom passthrough: echo back with a server timestamp.
		s.hub.SendToConnection(id, event.NewRaw(msg.Type, msg.Data, msg.Metadata))
	}
}

func (s *Server) fanOutMessage(id string, msg inboundMessage) {
	if msg.Room == "" {
		s.logger.Debug("send-message without room", zap.String("id", id))
		return
	}
	sender := messageSender{ConnectionID: id}
	if snap, ok := s.hub.Get(id); ok {
		sender.Name = snap.Name
	}
	ev, err := event.New(cnst.EventMessage, messagePayload{
		Room:    msg.Room,
		Message: msg.Message,
		From:    sender,
	})
	if err != nil {
		s.logger.Error("failed to build message event", zap.Error(err))
		return
	}
	if len(msg.Metadata) > 0 {
		ev = ev.WithMetadata(msg.Metadata)
	}
	if _, err := s.hub.SendToGroup(msg.Room, ev); err != nil {
		s.logger.Warn("failed to fan out message", zap.String("room", msg.Room), zap.Error(err))
	}
}

func (s *Server) reply(id, typ string, payload any) {
	ev, err := event.New(typ, payload)
	if err != nil {
		s.logger.Error("failed to build reply", zap.String("type", typ), zap.Error(err))
		return
	}
	s.hub.SendToConnection(id, ev)
}
