package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
)

type transitionRecorder struct {
	mu          sync.Mutex
	states      []State
	ids         []string
	activeSets  [][]string
	reactivated []bool
}

func (r *transitionRecorder) PresenceChanged(snap Snapshot, state State, activeCount int, activeIDs []string, reactivated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, snap.ID)
	r.states = append(r.states, state)
	r.activeSets = append(r.activeSets, activeIDs)
	r.reactivated = append(r.reactivated, reactivated)
}

func newTestTracker(t *testing.T, clk *clock.Mock, h *Hub) (*Tracker, *transitionRecorder) {
	t.Helper()
	tracker := NewTracker(h, zap.NewNop(), clk, nil, 3*time.Second, map[cnst.TransportKind]time.Duration{
		cnst.TransportWebSocket: 5 * time.Minute,
		cnst.TransportSSE:       10 * time.Second,
	})
	rec := &transitionRecorder{}
	tracker.SetListener(rec)
	return tracker, rec
}

func TestClassify_WithinWindowStaysActive(t *testing.T) {
	clk := clock.NewMock()
	h := newTestHub(clk)
	tracker, rec := newTestTracker(t, clk, h)
	register(h, "d", "")

	clk.Add(2 * time.Second)
	tracker.Classify()
	assert.Empty(t, rec.states, "no transition while within the active window")
}

func TestClassify_BoundaryIsInclusive(t *testing.T) {
	clk := clock.NewMock()
	h := newTestHub(clk)
	tracker, rec := newTestTracker(t, clk, h)
	register(h, "d", "")

	// exactly on the boundary counts as the older (active) state
	clk.Add(3 * time.Second)
	tracker.Classify()
	assert.Empty(t, rec.states)

	clk.Add(time.Millisecond)
	tracker.Classify()
	require.Equal(t, []State{StateInactive}, rec.states)
}

func TestClassify_EmitsTransitionExactlyOnce(t *testing.T) {
	clk := clock.NewMock()
	h := newTestHub(clk)
	tracker, rec := newTestTracker(t, clk, h)
	register(h, "d", "")

	clk.Add(3*time.Second + 500*time.Millisecond)
	tracker.Classify()
	tracker.Classify()
	tracker.Classify()
	require.Equal(t, []State{StateInactive}, rec.states, "steady state must not re-emit")
	assert.Equal(t, []string{"d"}, rec.ids)
	assert.Empty(t, rec.activeSets[0])
}

func TestClassify_ReactivationFlagsUserReturn(t *testing.T) {
	clk := clock.NewMock()
	h := newTestHub(clk)
	tracker, rec := newTestTracker(t, clk, h)
	register(h, "d", "")

	clk.Add(4 * time.Second)
	tracker.Classify()
	h.Touch("d")
	tracker.Classify()

	require.Equal(t, []State{StateInactive, StateActive}, rec.states)
	assert.Equal(t, []bool{false, true}, rec.reactivated)
	assert.Equal(t, []string{"d"}, rec.activeSets[1], "snapshot carries the full active set")
}

func TestClassify_ActiveSetIsFullSnapshot(t *testing.T) {
	clk := clock.NewMock()
	h := newTestHub(clk)
	tracker, rec := newTestTracker(t, clk, h)
	register(h, "a", "")
	register(h, "b", "")

	clk.Add(4 * time.Second)
	h.Touch("a")
	tracker.Classify() // b goes inactive, a stays active

	require.Len(t, rec.states, 1)
	assert.Equal(t, "b", rec.ids[0])
	assert.Equal(t, []string{"a"}, rec.activeSets[0])
}

func TestEvictStale_RemovesAndCloses(t *testing.T) {
	clk := clock.NewMock()
	h := newTestHub(clk)
	tracker, _ := newTestTracker(t, clk, h)
	rec := &recorder{}
	h.AddListener(rec)
	s := register(h, "d", "")

	clk.Add(5*time.Minute + time.Second)
	assert.Equal(t, 1, tracker.EvictStale(cnst.TransportWebSocket))

	_, present := h.Get("d")
	assert.False(t, present)
	assert.True(t, s.isClosed())
	require.Len(t, rec.removed, 1)
	assert.Equal(t, ReasonStale, rec.reasons[0])

	// second sweep finds nothing
	assert.Zero(t, tracker.EvictStale(cnst.TransportWebSocket))
}

func TestEvictStale_RespectsPerKindThresholds(t *testing.T) {
	clk := clock.NewMock()
	h := newTestHub(clk)
	tracker, _ := newTestTracker(t, clk, h)
	register(h, "ws", "")
	sse := &fakeSender{}
	_, err := h.Register("push", "", "", "", cnst.TransportSSE, sse)
	require.NoError(t, err)

	// 11s: past the SSE threshold, far from the WebSocket one
	clk.Add(11 * time.Second)
	assert.Zero(t, tracker.EvictStale(cnst.TransportWebSocket))
	assert.Equal(t, 1, tracker.EvictStale(cnst.TransportSSE))

	_, wsPresent := h.Get("ws")
	_, ssePresent := h.Get("push")
	assert.True(t, wsPresent)
	assert.False(t, ssePresent)
}

func TestEvictStale_OneFailureDoesNotBlockOthers(t *testing.T) {
	clk := clock.NewMock()
	h := newTestHub(clk)
	tracker, _ := newTestTracker(t, clk, h)
	register(h, "a", "")
	register(h, "b", "")

	clk.Add(6 * time.Minute)
	// fakeSender.Close never fails, but eviction must proceed per
	// connection regardless; both go in one sweep.
	assert.Equal(t, 2, tracker.EvictStale(cnst.TransportWebSocket))
	assert.Zero(t, h.Count())
}
