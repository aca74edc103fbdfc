package hub

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
	"github.com/lumenhq/beacon/internal/event"
)

// target pairs a connection id with its sender, collected under the read
// lock and delivered to outside it.
type target struct {
	id     string
	sender Sender
}

// SendToConnection delivers one event to one connection. Returns false when
// the connection is unknown or delivery failed; a failed delivery evicts the
// connection immediately.
func (h *Hub) SendToConnection(id string, ev *event.Event) bool {
	if id == "" {
		return false
	}
	payload, err := ev.Encode()
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return false
	}
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.deliver([]target{{id: c.id, sender: c.sender}}, payload) == 1
}

// SendToUser delivers the event to every connection of a logical user via
// the secondary index. Partial delivery is normal: dead connections are
// pruned and only the live ones count.
func (h *Hub) SendToUser(userID string, ev *event.Event) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("sendToUser: %w", ErrMissingTarget)
	}
	payload, err := ev.Encode()
	if err != nil {
		return 0, err
	}
	h.mu.RLock()
	var targets []target
	for id := range h.byUser[userID] {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, target{id: c.id, sender: c.sender})
		}
	}
	h.mu.RUnlock()
	return h.deliverCounted("user", targets, payload), nil
}

// SendToGroup delivers the event to every member of a named group. An
// unknown group delivers to nobody and returns 0.
func (h *Hub) SendToGroup(group string, ev *event.Event) (int, error) {
	if group == "" {
		return 0, fmt.Errorf("sendToGroup: %w", ErrMissingTarget)
	}
	payload, err := ev.Encode()
	if err != nil {
		return 0, err
	}
	h.mu.RLock()
	var targets []target
	for id := range h.groups[group] {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, target{id: c.id, sender: c.sender})
		}
	}
	h.mu.RUnlock()
	return h.deliverCounted("group", targets, payload), nil
}

// Broadcast delivers the event to every registered connection.
func (h *Hub) Broadcast(ev *event.Event) int {
	payload, err := ev.Encode()
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return 0
	}
	h.mu.RLock()
	targets := make([]target, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, target{id: c.id, sender: c.sender})
	}
	h.mu.RUnlock()
	return h.deliverCounted("broadcast", targets, payload)
}

// SendToKind delivers the event to every connection on one transport.
// Used by the per-transport heartbeat tasks.
func (h *Hub) SendToKind(kind cnst.TransportKind, ev *event.Event) int {
	payload, err := ev.Encode()
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return 0
	}
	h.mu.RLock()
	var targets []target
	for _, c := range h.conns {
		if c.kind == kind {
			targets = append(targets, target{id: c.id, sender: c.sender})
		}
	}
	h.mu.RUnlock()
	return h.deliverCounted("kind", targets, payload)
}

// PingKind sends a transport-level keepalive probe to every connection on
// one transport. Senders without probe support are skipped. A failed probe
// is a dead-connection signal, handled like a failed delivery. Returns the
// number of successful probes.
func (h *Hub) PingKind(kind cnst.TransportKind) int {
	h.mu.RLock()
	var targets []target
	for _, c := range h.conns {
		if c.kind == kind {
			targets = append(targets, target{id: c.id, sender: c.sender})
		}
	}
	h.mu.RUnlock()

	pinged := 0
	for _, t := range targets {
		p, ok := t.sender.(Pinger)
		if !ok {
			continue
		}
		if err := p.Ping(); err != nil {
			h.logger.Warn("keepalive probe failed, evicting connection",
				zap.String("id", t.id),
				zap.Error(err))
			h.Evict(t.id, ReasonDeliveryFailure)
			continue
		}
		pinged++
	}
	return pinged
}

// Resolve maps a list of recipient identifiers to connection ids, trying an
// exact connection-id match first and falling back to the user index. It
// never widens an empty resolution to a broadcast; that choice belongs to
// the caller. Duplicates are collapsed; unresolvable identifiers come back
// in misses.
func (h *Hub) Resolve(recipients []string) (ids []string, misses []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range recipients {
		if r == "" {
			continue
		}
		if _, ok := h.conns[r]; ok {
			if _, dup := seen[r]; !dup {
				seen[r] = struct{}{}
				ids = append(ids, r)
			}
			continue
		}
		if set, ok := h.byUser[r]; ok && len(set) > 0 {
			for id := range set {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
			continue
		}
		misses = append(misses, r)
	}
	return ids, misses
}

// SendToConnections delivers one event to an already-resolved id set.
func (h *Hub) SendToConnections(ids []string, ev *event.Event) int {
	payload, err := ev.Encode()
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return 0
	}
	h.mu.RLock()
	var targets []target
	for _, id := range ids {
		if c, ok := h.conns[id]; ok {
			targets = append(targets, target{id: c.id, sender: c.sender})
		}
	}
	h.mu.RUnlock()
	return h.deliverCounted("connection", targets, payload)
}

// deliver attempts delivery to each target. A failed send is a
// dead-connection signal: the target is evicted immediately instead of
// waiting for the next liveness sweep, and excluded from the count. One
// target's failure never aborts the rest of the fan-out.
func (h *Hub) deliver(targets []target, payload []byte) int {
	delivered := 0
	for _, t := range targets {
		if err := t.sender.Send(payload); err != nil {
			h.logger.Warn("delivery failed, evicting connection",
				zap.String("id", t.id),
				zap.Error(err))
			if h.metrics != nil {
				h.metrics.DeliveryFailed()
			}
			h.Evict(t.id, ReasonDeliveryFailure)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) deliverCounted(targetKind string, targets []target, payload []byte) int {
	n := h.deliver(targets, payload)
	if h.metrics != nil && n > 0 {
		h.metrics.Delivered(targetKind, n)
	}
	return n
}
