// Package intake normalizes wire action payloads into canonical commands.
//
// The pipeline never fails: every invalid input maps to a NoAction command
// with an explicit reject reason, so nothing downstream re-parses wire data
// or handles parse errors.
package intake

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/types"
)

// DeadlineGrace absorbs network latency: a submission is only tagged Late
// once the turn deadline is more than this much in the past.
const DeadlineGrace = time.Second

// wireAction is the canonical payload object form.
type wireAction struct {
	AttackZone         string `json:"attackZone"`
	BlockZonePrimary   string `json:"blockZonePrimary"`
	BlockZoneSecondary string `json:"blockZoneSecondary"`
}

// Pipeline normalizes submissions against the current battle state.
type Pipeline struct {
	clock types.Clock
}

// New creates an intake pipeline.
func New(clock types.Clock) *Pipeline {
	return &Pipeline{clock: clock}
}

func rejected(playerID uuid.UUID, turnIndex int64, reason battle.RejectReason) battle.ActionCommand {
	return battle.ActionCommand{
		PlayerID:     playerID,
		TurnIndex:    turnIndex,
		Quality:      battle.QualityFor(reason),
		RejectReason: reason,
	}
}

// Normalize turns a raw wire payload into the canonical command for this
// player and the server's current turn. The stored TurnIndex is always the
// server's, never the client's.
func (p *Pipeline) Normalize(st *battle.State, playerID uuid.UUID, clientTurnIndex int64, payload []byte) battle.ActionCommand {
	turn := st.TurnIndex

	if st.Phase != battle.PhaseTurnOpen {
		return rejected(playerID, turn, battle.RejectWrongPhase)
	}
	if clientTurnIndex != st.TurnIndex {
		return rejected(playerID, turn, battle.RejectWrongTurnIndex)
	}
	if p.clock.Now().UnixMilli() > st.DeadlineUnixMs+DeadlineGrace.Milliseconds() {
		return rejected(playerID, turn, battle.RejectDeadlinePassed)
	}
	if len(payload) == 0 {
		return rejected(playerID, turn, battle.RejectEmptyPayload)
	}

	var wire wireAction
	if err := json.Unmarshal(payload, &wire); err != nil {
		return rejected(playerID, turn, battle.RejectInvalidJSON)
	}

	var attack, blockPrimary, blockSecondary types.Zone
	if wire.AttackZone != "" {
		z, ok := types.ParseZone(wire.AttackZone)
		if !ok {
			return rejected(playerID, turn, battle.RejectInvalidAttackZone)
		}
		attack = z
	}
	if wire.BlockZonePrimary != "" {
		z, ok := types.ParseZone(wire.BlockZonePrimary)
		if !ok {
			return rejected(playerID, turn, battle.RejectInvalidBlockPrimary)
		}
		blockPrimary = z
	}
	if wire.BlockZoneSecondary != "" {
		z, ok := types.ParseZone(wire.BlockZoneSecondary)
		if !ok {
			return rejected(playerID, turn, battle.RejectInvalidBlockSecondary)
		}
		blockSecondary = z
	}

	if attack == "" {
		return rejected(playerID, turn, battle.RejectMissingAttackZone)
	}
	if (blockPrimary != "" || blockSecondary != "") &&
		!types.ValidBlockPattern(blockPrimary, blockSecondary) {
		return rejected(playerID, turn, battle.RejectInvalidBlockPattern)
	}

	return battle.ActionCommand{
		PlayerID:           playerID,
		TurnIndex:          turn,
		AttackZone:         attack,
		BlockZonePrimary:   blockPrimary,
		BlockZoneSecondary: blockSecondary,
		Quality:            battle.QualityValid,
	}
}

// FromStored converts a stored command back into a domain action for the
// engine, falling back to NoAction for missing, corrupted or legacy entries.
func FromStored(cmd *battle.ActionCommand, playerID uuid.UUID, turnIndex int64) battle.PlayerAction {
	if cmd == nil {
		return battle.NoAction(playerID, turnIndex, battle.RejectMissingStored)
	}
	if cmd.PlayerID != playerID || cmd.TurnIndex != turnIndex {
		return battle.NoAction(playerID, turnIndex, battle.RejectCorruptedStored)
	}
	if cmd.Quality == battle.QualityValid && cmd.AttackZone == "" {
		// Legacy entry violating the Valid => AttackZone invariant.
		return battle.NoAction(playerID, turnIndex, battle.RejectCorruptedStored)
	}
	return cmd.ToDomain()
}
