// Package cache keeps the latest reputation state per identity in Redis so
// reads do not have to hit PostgreSQL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
)

const keyPrefix = "soulscore:reputation:"

// ErrMiss is returned when no snapshot is cached for an identity.
var ErrMiss = errors.New("snapshot not cached")

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Snapshots is a Redis-backed reputation snapshot cache.
type Snapshots struct {
	client redisKV
	ttl    time.Duration
}

// NewSnapshots returns nil when client is nil so callers can treat a
// missing Redis as "no cache".
func NewSnapshots(client *redis.Client, ttl time.Duration) *Snapshots {
	if client == nil {
		return nil
	}
	return &Snapshots{client: client, ttl: ttl}
}

func key(identityID uuid.UUID) string {
	return keyPrefix + identityID.String()
}

// Put stores state as the identity's latest snapshot. A nil cache is a no-op.
func (s *Snapshots) Put(ctx context.Context, identityID uuid.UUID, state reputation.State) error {
	if s == nil {
		return nil
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.client.Set(ctx, key(identityID), payload, s.ttl).Err()
}

// Get returns the cached snapshot or ErrMiss.
func (s *Snapshots) Get(ctx context.Context, identityID uuid.UUID) (reputation.State, error) {
	if s == nil {
		return reputation.State{}, ErrMiss
	}
	raw, err := s.client.Get(ctx, key(identityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return reputation.State{}, ErrMiss
	}
	if err != nil {
		return reputation.State{}, fmt.Errorf("get snapshot: %w", err)
	}

	var st reputation.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return reputation.State{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return st, nil
}
