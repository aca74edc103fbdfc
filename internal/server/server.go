package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
	"github.com/lumenhq/beacon/internal/common/config"
	"github.com/lumenhq/beacon/internal/event"
	"github.com/lumenhq/beacon/internal/hub"
	"github.com/lumenhq/beacon/internal/mirror"
	"github.com/lumenhq/beacon/internal/scheduler"
	"github.com/lumenhq/beacon/pkg/metrics"
)

// Server owns the HTTP surface and the periodic task wiring.
type Server struct {
	logger  *zap.Logger
	cfg     *config.Config
	hub     *hub.Hub
	tracker *hub.Tracker
	sched   *scheduler.Scheduler
	metrics *metrics.Metrics
	mirror  *mirror.Mirror

	upgrader   websocket.Upgrader
	shutdownCh chan struct{}
}

// New wires a server. mirror may be nil when disabled.
func New(logger *zap.Logger, cfg *config.Config, h *hub.Hub, tracker *hub.Tracker, sched *scheduler.Scheduler, m *metrics.Metrics, mir *mirror.Mirror) *Server {
	return &Server{
		logger:  logger.Named("server"),
		cfg:     cfg,
		hub:     h,
		tracker: tracker,
		sched:   sched,
		metrics: m,
		mirror:  mir,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
			CheckOrigin: func(r *http.Request) bool {
				// Origin policy is enforced upstream at the edge proxy.
				return true
			},
		},
		shutdownCh: make(chan struct{}),
	}
}

// RegisterRoutes attaches the HTTP surface to the router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", s.handleWS)
	router.GET("/events", s.handleSSE)
	router.POST("/api/notify", s.handleNotify)
	router.POST("/api/touch", s.handleTouch)
	router.GET("/api/stats", s.handleStats)
	router.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// RegisterTasks attaches the periodic work to the process-wide scheduler:
// heartbeats per transport, the presence classification tick, and the
// per-transport stale sweeps. Each transport keeps its own heartbeat
// cadence and staleness threshold.
func (s *Server) RegisterTasks() error {
	tasks := []struct {
		name     string
		interval time.Duration
		fn       scheduler.Task
	}{
		{"heartbeat-websocket", s.cfg.WebSocket.HeartbeatInterval, func(context.Context) {
			s.heartbeat(cnst.TransportWebSocket)
		}},
		{"heartbeat-sse", s.cfg.SSE.HeartbeatInterval, func(context.Context) {
			s.heartbeat(cnst.TransportSSE)
		}},
		{"liveness-classify", s.cfg.Liveness.Tick, func(context.Context) {
			s.tracker.Classify()
		}},
		{"evict-websocket", s.cfg.WebSocket.EvictInterval, func(context.Context) {
			s.tracker.EvictStale(cnst.TransportWebSocket)
		}},
		{"prune-sse", s.cfg.SSE.PruneInterval, func(context.Context) {
			s.tracker.EvictStale(cnst.TransportSSE)
		}},
	}
	for _, t := range tasks {
		if err := s.sched.Every(t.name, t.interval, t.fn); err != nil {
			return err
		}
	}
	if s.mirror != nil {
		return s.sched.Every("mirror-refresh", s.cfg.Mirror.RefreshInterval, func(ctx context.Context) {
			s.mirror.Refresh(ctx, s.hub.List())
		})
	}
	return nil
}

func (s *Server) heartbeat(kind cnst.TransportKind) {
	ev, err := event.New(cnst.EventHeartbeat, gin.H{"ts": time.Now().UnixMilli()})
	if err != nil {
		return
	}
	s.hub.SendToKind(kind, ev)
	// Control pings ride the same tick; they refresh each peer's read
	// deadline without counting as liveness activity. Transports without
	// probe support are skipped inside the hub.
	s.hub.PingKind(kind)
}

// Shutdown stops background work and closes every connection.
func (s *Server) Shutdown() {
	close(s.shutdownCh)
	s.hub.Shutdown()
}

// connectedPayload is the on-connect confirmation both transports send.
type connectedPayload struct {
	ConnectionID     string    `json:"connectionId"`
	Timestamp        time.Time `json:"timestamp"`
	TotalConnections int       `json:"totalConnections"`
}

func (s *Server) sendConnected(id string) {
	ev, err := event.New(cnst.EventConnected, connectedPayload{
		ConnectionID:     id,
		Timestamp:        time.Now(),
		TotalConnections: s.hub.Count(),
	})
	if err != nil {
		return
	}
	s.hub.SendToConnection(id, ev)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTouch(c *gin.Context) {
	var req struct {
		ConnectionID string `json:"connectionId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ConnectionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "connectionId is required"})
		return
	}
	s.hub.Touch(req.ConnectionID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleStats(c *gin.Context) {
	transports := make(map[string]int)
	for _, snap := range s.hub.List() {
		transports[string(snap.Kind)]++
	}
	active := s.hub.ActiveSet()
	c.JSON(http.StatusOK, gin.H{
		"totalConnections": s.hub.Count(),
		"transports":       transports,
		"groups":           s.hub.GroupSizes(),
		"activeCount":      len(active),
		"activeIds":        active,
	})
}
