package hub

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
)

// Register creates a record for a freshly accepted connection and auto-joins
// it to the default group. userID, name and email are optional. Fires exactly
// one ConnectionAdded notification.
func (h *Hub) Register(id, userID, name, email string, kind cnst.TransportKind, sender Sender) (Snapshot, error) {
	if id == "" {
		return Snapshot{}, fmt.Errorf("register: %w", ErrMissingTarget)
	}
	if sender == nil {
		return Snapshot{}, fmt.Errorf("register %s: sender is required", id)
	}

	now := h.clock.Now()
	h.mu.Lock()
	if _, exists := h.conns[id]; exists {
		h.mu.Unlock()
		h.logger.Error("duplicate connection id from transport layer",
			zap.String("id", id),
			zap.String("kind", string(kind)))
		return Snapshot{}, fmt.Errorf("%w: %s", ErrDuplicateConnection, id)
	}

	c := &conn{
		id:         id,
		userID:     userID,
		name:       name,
		email:      email,
		kind:       kind,
		createdAt:  now,
		lastActive: now,
		state:      StateActive,
		groups:     map[string]struct{}{cnst.DefaultGroup: {}},
		sender:     sender,
	}
	h.conns[id] = c
	if userID != "" {
		set, ok := h.byUser[userID]
		if !ok {
			set = make(map[string]struct{})
			h.byUser[userID] = set
		}
		set[id] = struct{}{}
	}
	members, ok := h.groups[cnst.DefaultGroup]
	if !ok {
		members = make(map[string]struct{})
		h.groups[cnst.DefaultGroup] = members
	}
	members[id] = struct{}{}

	snap := c.snapshot()
	total := len(h.conns)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnOpened(string(kind))
	}
	h.logger.Info("connection registered",
		zap.String("id", id),
		zap.String("userId", userID),
		zap.String("kind", string(kind)),
		zap.Int("total", total))

	for _, l := range h.listeners {
		l.ConnectionAdded(snap, total)
	}
	return snap, nil
}

// Touch refreshes the last-active timestamp. Unknown ids are silently
// ignored: inbound activity can race with eviction.
func (h *Hub) Touch(id string) {
	now := h.clock.Now()
	h.mu.Lock()
	if c, ok := h.conns[id]; ok {
		c.lastActive = now
	}
	h.mu.Unlock()
}

// Remove deletes the record and purges its group memberships. Idempotent:
// removing an absent id returns ok=false and notifies nobody. The returned
// snapshot carries the cached identity for disconnect notifications.
func (h *Hub) Remove(id string, reason RemoveReason) (Snapshot, bool) {
	h.mu.Lock()
	c, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		return Snapshot{}, false
	}
	delete(h.conns, id)
	if c.userID != "" {
		if set, ok := h.byUser[c.userID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(h.byUser, c.userID)
			}
		}
	}
	for g := range c.groups {
		if members, ok := h.groups[g]; ok {
			delete(members, id)
			if len(members) == 0 {
				delete(h.groups, g)
			}
		}
	}
	snap := c.snapshot()
	total := len(h.conns)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnClosed(string(c.kind))
		if reason == ReasonStale || reason == ReasonDeliveryFailure {
			h.metrics.Evicted(string(reason))
		}
	}
	h.logger.Info("connection removed",
		zap.String("id", id),
		zap.String("reason", string(reason)),
		zap.Int("total", total))

	for _, l := range h.listeners {
		l.ConnectionRemoved(snap, total, reason)
	}
	return snap, true
}

// Evict force-closes the transport, then removes the record. Close errors
// are swallowed: the transport may already be gone. Safe to race with a
// concurrent Remove for the same id; the loser observes the id absent and
// no-ops.
func (h *Hub) Evict(id string, reason RemoveReason) (Snapshot, bool) {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if ok {
		if err := c.sender.Close(); err != nil {
			h.logger.Debug("transport close failed during eviction",
				zap.String("id", id),
				zap.Error(err))
		}
	}
	return h.Remove(id, reason)
}

// Get returns a read-only copy of one record.
func (h *Hub) Get(id string) (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	if !ok {
		return Snapshot{}, false
	}
	return c.snapshot(), true
}

// List returns a copy of every record.
func (h *Hub) List() []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Snapshot, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c.snapshot())
	}
	return out
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// FindByUser returns every connection of a logical user. Backed by a
// secondary index maintained under the registry lock rather than a scan,
// so sendToUser stays correct at scale.
func (h *Hub) FindByUser(userID string) []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids, ok := h.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]Snapshot, 0, len(ids))
	for id := range ids {
		if c, ok := h.conns[id]; ok {
			out = append(out, c.snapshot())
		}
	}
	return out
}

// ActiveSet returns the sorted ids of connections currently classified
// as active.
func (h *Hub) ActiveSet() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for id, c := range h.conns {
		if c.state == StateActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
