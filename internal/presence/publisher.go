// Package presence turns registry and liveness signals into the events
// clients consume: connection-count updates, active/inactive presence
// snapshots and human-readable user notifications.
package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/cnst"
	"github.com/lumenhq/beacon/internal/event"
	"github.com/lumenhq/beacon/internal/hub"
)

// Broadcaster is the slice of the fan-out engine the publisher needs.
type Broadcaster interface {
	Broadcast(ev *event.Event) int
}

// ConnectionUpdate is the payload of connection-update events.
type ConnectionUpdate struct {
	Subtype          string `json:"subtype"`
	ConnectionID     string `json:"connectionId"`
	Username         string `json:"username,omitempty"`
	TotalConnections int    `json:"totalConnections"`
}

// UserConnected is the payload announced once identity enrichment finishes.
type UserConnected struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
	Name         string `json:"name"`
}

// PresenceChange is the payload of presence events. ActiveIDs is a full
// snapshot, not a delta: snapshots can arrive out of order relative to
// membership changes, so consumers replace their view wholesale.
type PresenceChange struct {
	ConnectionID string   `json:"connectionId"`
	State        string   `json:"state"`
	ActiveCount  int      `json:"activeCount"`
	ActiveIDs    []string `json:"activeIds"`
}

// UserActive is the payload of the reactivation notification.
type UserActive struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
}

// Publisher consumes hub signals and emits presence traffic through the
// fan-out engine. It implements hub.Listener and hub.TransitionListener.
type Publisher struct {
	logger      *zap.Logger
	broadcaster Broadcaster
	resolver    Resolver
	enrichment  time.Duration
}

var (
	_ hub.Listener           = (*Publisher)(nil)
	_ hub.TransitionListener = (*Publisher)(nil)
)

// NewPublisher creates a publisher. A nil resolver disables enrichment
// lookups; the fallback chain then runs on client-supplied fields alone.
func NewPublisher(logger *zap.Logger, b Broadcaster, r Resolver) *Publisher {
	if r == nil {
		r = NoopResolver{}
	}
	return &Publisher{
		logger:      logger.Named("presence"),
		broadcaster: b,
		resolver:    r,
		enrichment:  5 * time.Second,
	}
}

// ConnectionAdded broadcasts the new-connection update and kicks off the
// async identity enrichment for the user-connected announcement.
func (p *Publisher) ConnectionAdded(snap hub.Snapshot, total int) {
	p.emit(cnst.EventConnectionUpdate, ConnectionUpdate{
		Subtype:          cnst.UpdateNewConnection,
		ConnectionID:     snap.ID,
		Username:         snap.Name,
		TotalConnections: total,
	})
	go p.announceUser(snap)
}

// ConnectionRemoved broadcasts the disconnection update with the removed
// record's cached identity; the record itself no longer exists.
func (p *Publisher) ConnectionRemoved(snap hub.Snapshot, total int, reason hub.RemoveReason) {
	p.emit(cnst.EventConnectionUpdate, ConnectionUpdate{
		Subtype:          cnst.UpdateDisconnection,
		ConnectionID:     snap.ID,
		Username:         snap.Name,
		TotalConnections: total,
	})
}

// PresenceChanged broadcasts the presence snapshot; a reactivation also
// gets its own user-active notification on the readable channel.
func (p *Publisher) PresenceChanged(snap hub.Snapshot, state hub.State, activeCount int, activeIDs []string, reactivated bool) {
	p.emit(cnst.EventPresence, PresenceChange{
		ConnectionID: snap.ID,
		State:        string(state),
		ActiveCount:  activeCount,
		ActiveIDs:    activeIDs,
	})
	if reactivated {
		p.emit(cnst.EventUserActive, UserActive{
			ConnectionID: snap.ID,
			Name:         DisplayName("", snap.Name, "", snap.Email, snap.ID),
		})
	}
}

func (p *Publisher) announceUser(snap hub.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), p.enrichment)
	defer cancel()

	profile, err := p.resolver.Resolve(ctx, snap)
	if err != nil {
		p.logger.Warn("identity enrichment failed",
			zap.String("id", snap.ID),
			zap.Error(err))
		profile = nil
	}
	var profileName, profileEmail string
	if profile != nil {
		profileName = profile.Name
		profileEmail = profile.Email
	}
	p.emit(cnst.EventUserConnected, UserConnected{
		ConnectionID: snap.ID,
		UserID:       snap.UserID,
		Name:         DisplayName(profileName, snap.Name, profileEmail, snap.Email, snap.ID),
	})
}

func (p *Publisher) emit(typ string, payload any) {
	ev, err := event.New(typ, payload)
	if err != nil {
		p.logger.Error("failed to build event", zap.String("type", typ), zap.Error(err))
		return
	}
	p.broadcaster.Broadcast(ev)
}

// DisplayName applies the name fallback precedence: enriched profile name,
// client-supplied display name, profile email, client email, then a
// synthesized placeholder from the connection id. The order is fixed.
func DisplayName(profileName, clientName, profileEmail, clientEmail, connID string) string {
	switch {
	case profileName != "":
		return profileName
	case clientName != "":
		return clientName
	case profileEmail != "":
		return profileEmail
	case clientEmail != "":
		return clientEmail
	}
	short := connID
	if len(short) > 8 {
		short = short[:8]
	}
	return "User " + short
}
