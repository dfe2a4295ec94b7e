// Package bus carries integration events between the battle server and its
// collaborators over Redis Streams: BattleCreated in, BattleEnded out.
package bus

import (
	"context"

	"github.com/google/uuid"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/rules"
)

// Stream names.
const (
	StreamBattleCreated = "events:battle.created"
	StreamBattleEnded   = "events:battle.ended"
)

// BattleCreated is the inbound event that starts a battle. Delivery is
// at-least-once; the lifecycle service is idempotent against redelivery.
type BattleCreated struct {
	BattleID  uuid.UUID         `json:"battleId"`
	MatchID   uuid.UUID         `json:"matchId"`
	PlayerAID uuid.UUID         `json:"playerAId"`
	PlayerBID uuid.UUID         `json:"playerBId"`
	Ruleset   *rules.Descriptor `json:"ruleset"`
	CreatedAt int64             `json:"createdAt"`
	Version   int               `json:"version"`
}

// BattleEnded is the outbound terminal event, published exactly once per
// battle: only by the caller whose end transition committed.
type BattleEnded struct {
	BattleID      uuid.UUID        `json:"battleId"`
	MatchID       uuid.UUID        `json:"matchId"`
	Reason        battle.EndReason `json:"reason"`
	WinnerID      *uuid.UUID       `json:"winnerId,omitempty"`
	EndedAtUnixMs int64            `json:"endedAtUnixMs"`
	Version       int              `json:"version"`
}

// Publisher is the outbound integration port.
type Publisher interface {
	PublishBattleEnded(ctx context.Context, ev BattleEnded) error
}

// NopPublisher discards outbound events.
type NopPublisher struct{}

// PublishBattleEnded implements Publisher.
func (NopPublisher) PublishBattleEnded(context.Context, BattleEnded) error { return nil }
