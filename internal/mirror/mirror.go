// Package mirror maintains an out-of-process copy of connection metadata
// in Redis so operators can inspect live connections without attaching to
// the gateway. It is write-through with a TTL; entries for connections
// that die with the process simply age out. The mirror is never a fan-out
// or discovery path.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumenhq/beacon/internal/common/config"
	"github.com/lumenhq/beacon/internal/hub"
)

const opTimeout = 2 * time.Second

// Entry is the serialized form of one connection's metadata.
type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Groups     []string  `json:"groups,omitempty"`
}

// Mirror writes connection metadata to Redis with a TTL. It implements
// hub.Listener so registrations and removals flow through automatically;
// Refresh keeps TTLs alive for long-lived connections.
type Mirror struct {
	logger *zap.Logger
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ hub.Listener = (*Mirror)(nil)

// New connects to Redis and verifies the connection.
func New(logger *zap.Logger, cfg config.MirrorConfig) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Mirror{
		logger: logger.Named("mirror"),
		client: client,
		prefix: cfg.Prefix + ":",
		ttl:    cfg.TTL,
	}, nil
}

// ConnectionAdded implements hub.Listener. Errors are logged, never
// propagated; the mirror must not interfere with connection handling.
func (m *Mirror) ConnectionAdded(snap hub.Snapshot, total int) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := m.Record(ctx, snap); err != nil {
		m.logger.Warn("failed to mirror connection", zap.String("id", snap.ID), zap.Error(err))
	}
}

// ConnectionRemoved implements hub.Listener.
func (m *Mirror) ConnectionRemoved(snap hub.Snapshot, total int, reason hub.RemoveReason) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := m.Forget(ctx, snap.ID); err != nil {
		m.logger.Warn("failed to drop mirrored connection", zap.String("id", snap.ID), zap.Error(err))
	}
}

// Record writes one connection's metadata and adds its id to the live set.
func (m *Mirror) Record(ctx context.Context, snap hub.Snapshot) error {
	entry := Entry{
		ID:         snap.ID,
		UserID:     snap.UserID,
		Name:       snap.Name,
		Kind:       string(snap.Kind),
		CreatedAt:  snap.CreatedAt,
		LastActive: snap.LastActive,
		Groups:     snap.Groups,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal mirror entry: %w", err)
	}
	if err := m.client.Set(ctx, m.prefix+snap.ID, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store mirror entry: %w", err)
	}
	if err := m.client.SAdd(ctx, m.prefix+"ids", snap.ID).Err(); err != nil {
		return fmt.Errorf("failed to add id to live set: %w", err)
	}
	return m.client.Expire(ctx, m.prefix+"ids", m.ttl).Err()
}

// Refresh rewrites current metadata for every given connection, renewing
// TTLs. Driven by a periodic scheduler task.
func (m *Mirror) Refresh(ctx context.Context, snaps []hub.Snapshot) {
	for _, snap := range snaps {
		if err := m.Record(ctx, snap); err != nil {
			m.logger.Warn("failed to refresh mirror entry", zap.String("id", snap.ID), zap.Error(err))
		}
	}
}

// Forget removes one connection's entry and live-set membership.
func (m *Mirror) Forget(ctx context.Context, id string) error {
	if err := m.client.Del(ctx, m.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete mirror entry: %w", err)
	}
	return m.client.SRem(ctx, m.prefix+"ids", id).Err()
}

// List reads back every mirrored entry. Entries that expired between the
// set read and the key read are skipped.
func (m *Mirror) List(ctx context.Context) ([]Entry, error) {
	ids, err := m.client.SMembers(ctx, m.prefix+"ids").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read live set: %w", err)
	}
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		data, err := m.client.Get(ctx, m.prefix+id).Bytes()
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			m.logger.Warn("corrupt mirror entry", zap.String("id", id), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close releases the Redis client.
func (m *Mirror) Close() error {
	return m.client.Close()
}
