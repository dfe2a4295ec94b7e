package combat

import (
	"github.com/google/uuid"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/types"
)

// Outcome classifies one directed attack.
type Outcome string

const (
	OutcomeNoAction            Outcome = "no_action"
	OutcomeDodged              Outcome = "dodged"
	OutcomeBlocked             Outcome = "blocked"
	OutcomeHit                 Outcome = "hit"
	OutcomeCriticalHit         Outcome = "critical_hit"
	OutcomeCriticalBypassBlock Outcome = "critical_bypass_block"
	OutcomeCriticalHybridBlock Outcome = "critical_hybrid_blocked"
)

// AttackResolution is the full log of one directed attack.
type AttackResolution struct {
	AttackerID uuid.UUID `json:"attackerId"`
	DefenderID uuid.UUID `json:"defenderId"`

	AttackZone         types.Zone `json:"attackZone,omitempty"`
	BlockZonePrimary   types.Zone `json:"blockZonePrimary,omitempty"`
	BlockZoneSecondary types.Zone `json:"blockZoneSecondary,omitempty"`

	Outcome  Outcome `json:"outcome"`
	Damage   int64   `json:"damage"`
	Critical bool    `json:"critical"`
	// WasBlocked records the zone match even when the attack was dodged.
	WasBlocked bool `json:"wasBlocked"`
}

// TurnLog carries both directed resolutions of one turn.
type TurnLog struct {
	TurnIndex int64            `json:"turnIndex"`
	AToB      AttackResolution `json:"aToB"`
	BToA      AttackResolution `json:"bToA"`
}

// Event is one ordered output of the turn engine.
type Event interface {
	battleEvent()
}

// PlayerDamaged is emitted for every non-zero damage taken.
type PlayerDamaged struct {
	PlayerID    uuid.UUID
	Damage      int64
	RemainingHP int64
	TurnIndex   int64
}

// TurnResolved is emitted exactly once per resolved turn.
type TurnResolved struct {
	TurnIndex int64
	Log       TurnLog
}

// BattleEnded is emitted at most once per battle.
type BattleEnded struct {
	TurnIndex int64
	Reason    battle.EndReason
	// Winner is nil on a draw (double forfeit or mutual death).
	Winner *uuid.UUID
}

func (PlayerDamaged) battleEvent() {}
func (TurnResolved) battleEvent()  {}
func (BattleEnded) battleEvent()   {}
