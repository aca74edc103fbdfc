package hub

import (
	"sort"

	"go.uber.org/zap"
)

// Join adds the connection to a named group, updating both sides of the
// membership index atomically. Idempotent; a no-op when the connection is
// not registered (a join racing a disconnect is normal, not an error).
func (h *Hub) Join(id, group string) {
	if group == "" {
		return
	}
	h.mu.Lock()
	c, ok := h.conns[id]
	if !ok {
		h.mu.Unlock()
		h.logger.Debug("join for unknown connection", zap.String("id", id), zap.String("group", group))
		return
	}
	if _, already := c.groups[group]; already {
		h.mu.Unlock()
		return
	}
	c.groups[group] = struct{}{}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[id] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("joined group", zap.String("id", id), zap.String("group", group))
}

// Leave removes the connection from a named group. Idempotent.
func (h *Hub) Leave(id, group string) {
	if group == "" {
		return
	}
	h.mu.Lock()
	c, ok := h.conns[id]
	if ok {
		delete(c.groups, group)
	}
	if members, ok := h.groups[group]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	h.mu.Unlock()
}

// MembersOf returns the sorted connection ids in a group. Unknown or empty
// groups yield an empty slice, never an error: groups are emergent sets,
// never explicitly created or destroyed.
func (h *Hub) MembersOf(group string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.groups[group]
	if !ok {
		return []string{}
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GroupSizes returns every non-empty group with its member count.
func (h *Hub) GroupSizes() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.groups))
	for g, members := range h.groups {
		out[g] = len(members)
	}
	return out
}
