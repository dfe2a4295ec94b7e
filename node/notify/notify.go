// Package notify defines the real-time push port and its message payloads.
package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/combat"
)

// Message types on the client channel.
const (
	TypeBattleReady   = "battle_ready"
	TypeTurnOpened    = "turn_opened"
	TypeTurnResolved  = "turn_resolved"
	TypePlayerDamaged = "player_damaged"
	TypeBattleEnded   = "battle_ended"
)

// BattleReadyMsg announces an initialized battle to both clients.
type BattleReadyMsg struct {
	BattleID  uuid.UUID `json:"battleId"`
	PlayerAID uuid.UUID `json:"playerAId"`
	PlayerBID uuid.UUID `json:"playerBId"`
}

// TurnOpenedMsg announces an open turn and its deadline.
type TurnOpenedMsg struct {
	BattleID       uuid.UUID `json:"battleId"`
	TurnIndex      int64     `json:"turnIndex"`
	DeadlineUnixMs int64     `json:"deadlineUnixMs"`
}

// TurnResolvedMsg carries the full resolution log of one turn.
type TurnResolvedMsg struct {
	BattleID  uuid.UUID      `json:"battleId"`
	TurnIndex int64          `json:"turnIndex"`
	Log       combat.TurnLog `json:"log"`
}

// PlayerDamagedMsg reports one player's HP loss.
type PlayerDamagedMsg struct {
	BattleID    uuid.UUID `json:"battleId"`
	PlayerID    uuid.UUID `json:"playerId"`
	Damage      int64     `json:"damage"`
	RemainingHP int64     `json:"remainingHp"`
	TurnIndex   int64     `json:"turnIndex"`
}

// BattleEndedMsg reports the terminal result.
type BattleEndedMsg struct {
	BattleID      uuid.UUID        `json:"battleId"`
	Reason        battle.EndReason `json:"reason"`
	WinnerID      *uuid.UUID       `json:"winnerId,omitempty"`
	EndedAtUnixMs int64            `json:"endedAtUnixMs"`
}

// Notifier pushes battle events to the connected clients of one battle.
// Implementations must preserve per-client message ordering. The core calls
// these only after a state transition committed.
type Notifier interface {
	BattleReady(ctx context.Context, msg BattleReadyMsg) error
	TurnOpened(ctx context.Context, msg TurnOpenedMsg) error
	TurnResolved(ctx context.Context, msg TurnResolvedMsg) error
	PlayerDamaged(ctx context.Context, msg PlayerDamagedMsg) error
	BattleEnded(ctx context.Context, msg BattleEndedMsg) error
}

// NopNotifier discards every push. Useful for tooling and tests that only
// exercise state transitions.
type NopNotifier struct{}

func (NopNotifier) BattleReady(context.Context, BattleReadyMsg) error     { return nil }
func (NopNotifier) TurnOpened(context.Context, TurnOpenedMsg) error       { return nil }
func (NopNotifier) TurnResolved(context.Context, TurnResolvedMsg) error   { return nil }
func (NopNotifier) PlayerDamaged(context.Context, PlayerDamagedMsg) error { return nil }
func (NopNotifier) BattleEnded(context.Context, BattleEndedMsg) error     { return nil }
