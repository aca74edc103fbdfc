package hub

import (
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
	"github.com/lumenhq/beacon/pkg/metrics"
)

// TransitionListener observes active/inactive transitions. Invoked outside
// the hub lock, once per connection per transition. reactivated is set when
// an inactive connection came back, the "user returned" case that warrants
// its own notification on top of the raw presence event.
type TransitionListener interface {
	PresenceChanged(snap Snapshot, state State, activeCount int, activeIDs []string, reactivated bool)
}

// Tracker derives presence states from elapsed time since last activity and
// evicts connections that went stale. It holds no state of its own beyond
// configuration; the per-connection state lives in the registry records so
// transitions are emitted exactly once.
type Tracker struct {
	hub          *Hub
	logger       *zap.Logger
	clock        clock.Clock
	metrics      *metrics.Metrics
	activeWindow time.Duration
	stale        map[cnst.TransportKind]time.Duration
	listener     TransitionListener
}

// NewTracker creates a tracker. stale maps each transport kind to its own
// staleness threshold; the two transports deliberately use different ones.
func NewTracker(h *Hub, logger *zap.Logger, clk clock.Clock, m *metrics.Metrics, activeWindow time.Duration, stale map[cnst.TransportKind]time.Duration) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		hub:          h,
		logger:       logger.Named("liveness"),
		clock:        clk,
		metrics:      m,
		activeWindow: activeWindow,
		stale:        stale,
	}
}

// SetListener attaches the presence consumer. Wire-up time only.
func (t *Tracker) SetListener(l TransitionListener) {
	t.listener = l
}

// Classify reevaluates every connection against the active window and
// emits one transition per state change. A connection exactly on the
// boundary counts as active (boundary-inclusive toward the older state).
func (t *Tracker) Classify() {
	now := t.clock.Now()

	type transition struct {
		snap        Snapshot
		state       State
		reactivated bool
	}
	var changes []transition
	var activeIDs []string

	h := t.hub
	h.mu.Lock()
	for _, c := range h.conns {
		state := StateInactive
		if now.Sub(c.lastActive) <= t.activeWindow {
			state = StateActive
		}
		if state == c.state {
			continue
		}
		reactivated := c.state == StateInactive && state == StateActive
		c.state = state
		changes = append(changes, transition{snap: c.snapshot(), state: state, reactivated: reactivated})
	}
	if len(changes) > 0 {
		activeIDs = make([]string, 0, len(h.conns))
		for id, c := range h.conns {
			if c.state == StateActive {
				activeIDs = append(activeIDs, id)
			}
		}
	}
	h.mu.Unlock()

	if len(changes) == 0 {
		return
	}
	sort.Strings(activeIDs)
	for _, ch := range changes {
		t.logger.Debug("presence transition",
			zap.String("id", ch.snap.ID),
			zap.String("state", string(ch.state)))
		if t.listener != nil {
			t.listener.PresenceChanged(ch.snap, ch.state, len(activeIDs), activeIDs, ch.reactivated)
		}
	}
}

// EvictStale force-closes and removes every connection of the given kind
// whose inactivity exceeds that kind's staleness threshold. Each eviction
// is independent; one connection's failure does not block the rest of the
// sweep. Returns the number evicted.
func (t *Tracker) EvictStale(kind cnst.TransportKind) int {
	threshold, ok := t.stale[kind]
	if !ok || threshold <= 0 {
		return 0
	}
	started := t.clock.Now()

	h := t.hub
	h.mu.RLock()
	var stale []string
	for id, c := range h.conns {
		if c.kind == kind && started.Sub(c.lastActive) > threshold {
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	evicted := 0
	for _, id := range stale {
		if _, ok := h.Evict(id, ReasonStale); ok {
			evicted++
		}
	}
	if evicted > 0 {
		t.logger.Info("evicted stale connections",
			zap.String("kind", string(kind)),
			zap.Int("count", evicted),
			zap.Duration("threshold", threshold))
	}
	if t.metrics != nil {
		t.metrics.SweepDone(t.clock.Now().Sub(started))
	}
	return evicted
}
