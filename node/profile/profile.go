// Package profile resolves player combat stats from an external source.
package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/types"
)

// Source resolves one player's immutable combat stats.
type Source interface {
	Stats(ctx context.Context, playerID uuid.UUID) (battle.PlayerStats, error)
}

// profileKey is the layout the profile service writes to.
func profileKey(playerID uuid.UUID) string {
	return "profile:" + playerID.String()
}

// RedisSource reads profiles written by the external profile service.
type RedisSource struct {
	rdb redis.UniversalClient
}

// NewRedisSource creates a Redis-backed profile source.
func NewRedisSource(rdb redis.UniversalClient) *RedisSource {
	return &RedisSource{rdb: rdb}
}

// Stats implements Source. A missing key yields types.ErrProfileNotFound.
func (s *RedisSource) Stats(ctx context.Context, playerID uuid.UUID) (battle.PlayerStats, error) {
	raw, err := s.rdb.Get(ctx, profileKey(playerID)).Bytes()
	if err == redis.Nil {
		return battle.PlayerStats{}, fmt.Errorf("%w: %s", types.ErrProfileNotFound, playerID)
	}
	if err != nil {
		return battle.PlayerStats{}, fmt.Errorf("get profile %s: %w", playerID, err)
	}
	var stats battle.PlayerStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return battle.PlayerStats{}, fmt.Errorf("decode profile %s: %w", playerID, err)
	}
	return stats, nil
}

// StaticSource serves stats from a fixed map. Used by tests and local runs.
type StaticSource struct {
	Profiles map[uuid.UUID]battle.PlayerStats
}

// Stats implements Source.
func (s StaticSource) Stats(_ context.Context, playerID uuid.UUID) (battle.PlayerStats, error) {
	stats, ok := s.Profiles[playerID]
	if !ok {
		return battle.PlayerStats{}, fmt.Errorf("%w: %s", types.ErrProfileNotFound, playerID)
	}
	return stats, nil
}
