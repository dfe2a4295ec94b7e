package battle

import (
	"github.com/google/uuid"

	"github.com/brawlpit/arena/core/types"
)

// Quality tags how a submitted action survived intake.
type Quality string

const (
	QualityValid             Quality = "valid"
	QualityNoAction          Quality = "no_action"
	QualityInvalid           Quality = "invalid"
	QualityLate              Quality = "late"
	QualityProtocolViolation Quality = "protocol_violation"
)

// RejectReason explains why intake downgraded an action to NoAction.
type RejectReason string

const (
	RejectNone                  RejectReason = ""
	RejectWrongPhase            RejectReason = "wrong_phase"
	RejectWrongTurnIndex        RejectReason = "wrong_turn_index"
	RejectDeadlinePassed        RejectReason = "deadline_passed"
	RejectEmptyPayload          RejectReason = "empty_payload"
	RejectInvalidJSON           RejectReason = "invalid_json"
	RejectInvalidAttackZone     RejectReason = "invalid_attack_zone"
	RejectInvalidBlockPrimary   RejectReason = "invalid_block_zone_primary"
	RejectInvalidBlockSecondary RejectReason = "invalid_block_zone_secondary"
	RejectMissingAttackZone     RejectReason = "missing_attack_zone"
	RejectInvalidBlockPattern   RejectReason = "invalid_block_pattern"
	RejectCorruptedStored       RejectReason = "corrupted_stored_action"
	RejectMissingStored         RejectReason = "missing_stored_action"
)

// QualityFor derives the action quality from a reject reason.
func QualityFor(reason RejectReason) Quality {
	switch reason {
	case RejectNone:
		return QualityValid
	case RejectEmptyPayload, RejectMissingStored, RejectCorruptedStored:
		return QualityNoAction
	case RejectDeadlinePassed:
		return QualityLate
	case RejectWrongPhase, RejectWrongTurnIndex:
		return QualityProtocolViolation
	default:
		return QualityInvalid
	}
}

// ActionCommand is the canonical stored form of one player's action for one
// turn. It is always well-formed: invalid wire input is stored as a NoAction
// with an explicit reject reason, never as the raw payload.
type ActionCommand struct {
	PlayerID  uuid.UUID `json:"playerId"`
	TurnIndex int64     `json:"turnIndex"`

	AttackZone         types.Zone `json:"attackZone,omitempty"`
	BlockZonePrimary   types.Zone `json:"blockZonePrimary,omitempty"`
	BlockZoneSecondary types.Zone `json:"blockZoneSecondary,omitempty"`

	Quality      Quality      `json:"quality"`
	RejectReason RejectReason `json:"rejectReason,omitempty"`
}

// PlayerAction is the domain form consumed by the turn engine.
type PlayerAction struct {
	PlayerID  uuid.UUID
	TurnIndex int64

	AttackZone         types.Zone
	BlockZonePrimary   types.Zone
	BlockZoneSecondary types.Zone

	Quality      Quality
	RejectReason RejectReason
}

// NoAction builds the canonical absent action for a player and turn.
func NoAction(playerID uuid.UUID, turnIndex int64, reason RejectReason) PlayerAction {
	return PlayerAction{
		PlayerID:     playerID,
		TurnIndex:    turnIndex,
		Quality:      QualityFor(reason),
		RejectReason: reason,
	}
}

// IsNoAction reports whether the action contributes no attack this turn.
func (a PlayerAction) IsNoAction() bool {
	return a.Quality != QualityValid || a.AttackZone == ""
}

// HasValidBlock reports whether the action carries a legal block pattern.
func (a PlayerAction) HasValidBlock() bool {
	return types.ValidBlockPattern(a.BlockZonePrimary, a.BlockZoneSecondary)
}

// ToDomain converts a stored command into the engine's action form.
func (c *ActionCommand) ToDomain() PlayerAction {
	return PlayerAction{
		PlayerID:           c.PlayerID,
		TurnIndex:          c.TurnIndex,
		AttackZone:         c.AttackZone,
		BlockZonePrimary:   c.BlockZonePrimary,
		BlockZoneSecondary: c.BlockZoneSecondary,
		Quality:            c.Quality,
		RejectReason:       c.RejectReason,
	}
}
