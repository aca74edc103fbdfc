package hub

import (
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
)

// fakeSender records deliveries; fail switches it into a dead transport.
type fakeSender struct {
	mu     sync.Mutex
	sent   [][]byte
	fail   bool
	closed bool
}

func (f *fakeSender) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return errors.New("write failed")
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) deliveries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// pingableSender is a fakeSender that also answers keepalive probes.
type pingableSender struct {
	fakeSender
	pings   int
	pingErr error
}

func (p *pingableSender) Ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pingErr != nil {
		return p.pingErr
	}
	p.pings++
	return nil
}

func (p *pingableSender) pingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pings
}

// recorder captures listener notifications.
type recorder struct {
	mu      sync.Mutex
	added   []Snapshot
	removed []Snapshot
	reasons []RemoveReason
	totals  []int
}

func (r *recorder) ConnectionAdded(snap Snapshot, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, snap)
	r.totals = append(r.totals, total)
}

func (r *recorder) ConnectionRemoved(snap Snapshot, total int, reason RemoveReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, snap)
	r.reasons = append(r.reasons, reason)
	r.totals = append(r.totals, total)
}

func newTestHub(clk clock.Clock) *Hub {
	return New(zap.NewNop(), nil, clk)
}

func register(h *Hub, id, userID string) *fakeSender {
	s := &fakeSender{}
	if _, err := h.Register(id, userID, "", "", cnst.TransportWebSocket, s); err != nil {
		panic(err)
	}
	return s
}
