package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
	"github.com/lumenhq/beacon/internal/event"
	"github.com/lumenhq/beacon/internal/hub"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []*event.Event
}

func (f *fakeBroadcaster) Broadcast(ev *event.Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return 1
}

func (f *fakeBroadcaster) byType(typ string) []*event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*event.Event
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type staticResolver struct {
	profile *Profile
	err     error
}

func (r staticResolver) Resolve(context.Context, hub.Snapshot) (*Profile, error) {
	return r.profile, r.err
}

func TestConnectionAdded_BroadcastsUpdateAndEnrichedUser(t *testing.T) {
	b := &fakeBroadcaster{}
	p := NewPublisher(zap.NewNop(), b, staticResolver{profile: &Profile{Name: "Grace Hopper"}})

	p.ConnectionAdded(hub.Snapshot{ID: "c1", UserID: "u1", Name: "grace"}, 3)

	updates := b.byType(cnst.EventConnectionUpdate)
	require.Len(t, updates, 1)
	var upd ConnectionUpdate
	require.NoError(t, json.Unmarshal(updates[0].Data, &upd))
	assert.Equal(t, cnst.UpdateNewConnection, upd.Subtype)
	assert.Equal(t, "c1", upd.ConnectionID)
	assert.Equal(t, 3, upd.TotalConnections)

	// enrichment is async
	require.Eventually(t, func() bool {
		return len(b.byType(cnst.EventUserConnected)) == 1
	}, time.Second, 5*time.Millisecond)
	var uc UserConnected
	require.NoError(t, json.Unmarshal(b.byType(cnst.EventUserConnected)[0].Data, &uc))
	assert.Equal(t, "Grace Hopper", uc.Name, "profile name wins over client name")
	assert.Equal(t, "u1", uc.UserID)
}

func TestConnectionAdded_EnrichmentFailureFallsBack(t *testing.T) {
	b := &fakeBroadcaster{}
	p := NewPublisher(zap.NewNop(), b, staticResolver{err: errors.New("identity service down")})

	p.ConnectionAdded(hub.Snapshot{ID: "abcdef123456", Name: ""}, 1)

	require.Eventually(t, func() bool {
		return len(b.byType(cnst.EventUserConnected)) == 1
	}, time.Second, 5*time.Millisecond)
	var uc UserConnected
	require.NoError(t, json.Unmarshal(b.byType(cnst.EventUserConnected)[0].Data, &uc))
	assert.Equal(t, "User abcdef12", uc.Name)
}

func TestConnectionRemoved_UsesCachedIdentity(t *testing.T) {
	b := &fakeBroadcaster{}
	p := NewPublisher(zap.NewNop(), b, nil)

	p.ConnectionRemoved(hub.Snapshot{ID: "c1", Name: "grace"}, 0, hub.ReasonStale)

	updates := b.byType(cnst.EventConnectionUpdate)
	require.Len(t, updates, 1)
	var upd ConnectionUpdate
	require.NoError(t, json.Unmarshal(updates[0].Data, &upd))
	assert.Equal(t, cnst.UpdateDisconnection, upd.Subtype)
	assert.Equal(t, "grace", upd.Username)
	assert.Equal(t, 0, upd.TotalConnections)
}

func TestPresenceChanged_SnapshotPayload(t *testing.T) {
	b := &fakeBroadcaster{}
	p := NewPublisher(zap.NewNop(), b, nil)

	p.PresenceChanged(hub.Snapshot{ID: "c1"}, hub.StateInactive, 2, []string{"a", "b"}, false)

	events := b.byType(cnst.EventPresence)
	require.Len(t, events, 1)
	var pc PresenceChange
	require.NoError(t, json.Unmarshal(events[0].Data, &pc))
	assert.Equal(t, "inactive", pc.State)
	assert.Equal(t, 2, pc.ActiveCount)
	assert.Equal(t, []string{"a", "b"}, pc.ActiveIDs)
	assert.Empty(t, b.byType(cnst.EventUserActive))
}

func TestPresenceChanged_ReactivationAddsUserActive(t *testing.T) {
	b := &fakeBroadcaster{}
	p := NewPublisher(zap.NewNop(), b, nil)

	p.PresenceChanged(hub.Snapshot{ID: "c1", Name: "grace"}, hub.StateActive, 1, []string{"c1"}, true)

	require.Len(t, b.byType(cnst.EventPresence), 1)
	actives := b.byType(cnst.EventUserActive)
	require.Len(t, actives, 1)
	var ua UserActive
	require.NoError(t, json.Unmarshal(actives[0].Data, &ua))
	assert.Equal(t, "grace", ua.Name)
}

func TestDisplayName_Precedence(t *testing.T) {
	tests := []struct {
		name                                             string
		profileName, clientName, profileEmail, clientEmail string
		want                                             string
	}{
		{"profile name first", "P", "C", "p@x", "c@x", "P"},
		{"client name second", "", "C", "p@x", "c@x", "C"},
		{"profile email third", "", "", "p@x", "c@x", "p@x"},
		{"client email fourth", "", "", "", "c@x", "c@x"},
		{"placeholder last", "", "", "", "", "User 12345678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DisplayName(tt.profileName, tt.clientName, tt.profileEmail, tt.clientEmail, "123456789abc")
			assert.Equal(t, tt.want, got)
		})
	}
}
