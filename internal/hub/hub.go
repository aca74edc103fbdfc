package hub

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
	"github.com/lumenhq/beacon/pkg/metrics"
)

var (
	// ErrDuplicateConnection is returned when a connection id is already
	// registered. The transport layer guarantees unique ids, so hitting
	// this is an integration error; the registration is rejected, not
	// crashed on.
	ErrDuplicateConnection = errors.New("connection already registered")

	// ErrMissingTarget is returned when a targeted send is invoked without
	// its required target identifier. This is a caller-contract violation
	// and surfaces loudly instead of silently delivering nothing.
	ErrMissingTarget = errors.New("missing target identifier")
)

// State is the derived presence classification of a connection.
type State string

const (
	// StateActive means the connection was active within the active window.
	StateActive State = "active"
	// StateInactive means the connection is beyond the active window but
	// not yet stale enough to evict.
	StateInactive State = "inactive"
)

// RemoveReason explains why a connection left the registry.
type RemoveReason string

const (
	ReasonDisconnect      RemoveReason = "disconnect"
	ReasonDeliveryFailure RemoveReason = "delivery-failure"
	ReasonStale           RemoveReason = "stale"
	ReasonShutdown        RemoveReason = "shutdown"
)

// Sender delivers raw bytes to one connection. Implementations must not
// block: a full outbound queue is reported as an error, which the hub
// treats as a dead-connection signal.
type Sender interface {
	Send(data []byte) error
	Close() error
}

// Pinger is the optional transport-level keepalive probe a sender may
// support. Probes keep the peer's read side alive between application
// events; they are not liveness activity.
type Pinger interface {
	Ping() error
}

// Listener observes connection-count changes. Register and Remove each
// notify exactly once. Callbacks run outside the hub lock and may call
// back into the hub.
type Listener interface {
	ConnectionAdded(snap Snapshot, total int)
	ConnectionRemoved(snap Snapshot, total int, reason RemoveReason)
}

// Snapshot is an immutable copy of a connection record, safe to hand to
// callers after the record itself is gone.
type Snapshot struct {
	ID         string
	UserID     string
	Name       string
	Email      string
	Kind       cnst.TransportKind
	CreatedAt  time.Time
	LastActive time.Time
	State      State
	Groups     []string
}

// conn is the registry record. All mutable fields are guarded by Hub.mu.
type conn struct {
	id         string
	userID     string
	name       string
	email      string
	kind       cnst.TransportKind
	createdAt  time.Time
	lastActive time.Time
	state      State
	groups     map[string]struct{}
	sender     Sender
}

func (c *conn) snapshot() Snapshot {
	groups := make([]string, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return Snapshot{
		ID:         c.id,
		UserID:     c.userID,
		Name:       c.name,
		Email:      c.email,
		Kind:       c.kind,
		CreatedAt:  c.createdAt,
		LastActive: c.lastActive,
		State:      c.state,
		Groups:     groups,
	}
}

// Hub owns the connection registry, the userId secondary index and the
// group membership index. Joins and removals touch several of these maps
// atomically, so one coarse lock guards them all; it avoids lock-ordering
// deadlocks between registry and membership updates.
type Hub struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   clock.Clock

	mu     sync.RWMutex
	conns  map[string]*conn
	byUser map[string]map[string]struct{}
	groups map[string]map[string]struct{}

	listeners []Listener
}

// New creates an empty hub. The clock is injectable so liveness tests can
// drive time deterministically.
func New(logger *zap.Logger, m *metrics.Metrics, clk clock.Clock) *Hub {
	if clk == nil {
		clk = clock.New()
	}
	return &Hub{
		logger:  logger.Named("hub"),
		metrics: m,
		clock:   clk,
		conns:   make(map[string]*conn),
		byUser:  make(map[string]map[string]struct{}),
		groups:  make(map[string]map[string]struct{}),
	}
}

// AddListener attaches a count-change observer. Wire-up time only; not
// safe to call once traffic is flowing.
func (h *Hub) AddListener(l Listener) {
	h.listeners = append(h.listeners, l)
}

// Shutdown force-closes every connection and empties the registry.
func (h *Hub) Shutdown() {
	for _, snap := range h.List() {
		h.Evict(snap.ID, ReasonShutdown)
	}
}
