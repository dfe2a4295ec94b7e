// Package battle defines the battle domain state and player actions.
package battle

import (
	"github.com/google/uuid"

	"github.com/brawlpit/arena/core/rules"
)

// Phase is the discrete battle stage.
type Phase string

const (
	// PhaseArenaOpen is the initialized-but-not-started stage; TurnIndex is 0.
	PhaseArenaOpen Phase = "arena_open"
	// PhaseTurnOpen means a turn is open for action submission.
	PhaseTurnOpen Phase = "turn_open"
	// PhaseResolving means a resolver owns the current turn.
	PhaseResolving Phase = "resolving"
	// PhaseEnded is terminal.
	PhaseEnded Phase = "ended"
)

// EndReason says why a battle ended.
type EndReason string

const (
	// EndReasonNormal: at least one player reached 0 HP.
	EndReasonNormal EndReason = "normal"
	// EndReasonDoubleForfeit: both players skipped NoActionLimit turns in a row.
	EndReasonDoubleForfeit EndReason = "double_forfeit"
)

// PlayerStats are the immutable base attributes of one fighter.
type PlayerStats struct {
	Strength  int `json:"strength"`
	Stamina   int `json:"stamina"`
	Agility   int `json:"agility"`
	Intellect int `json:"intellect"`
}

// PlayerSide is one fighter's slice of the battle state.
type PlayerSide struct {
	ID    uuid.UUID   `json:"id"`
	Stats PlayerStats `json:"stats"`
	MaxHP int64       `json:"maxHp"`
	HP    int64       `json:"hp"`
}

// State is the full persisted record of one battle. It is mutated only via
// the store's scripted transitions; Version strictly increases with every
// committed transition.
type State struct {
	BattleID uuid.UUID `json:"battleId"`
	MatchID  uuid.UUID `json:"matchId"`

	PlayerA PlayerSide `json:"playerA"`
	PlayerB PlayerSide `json:"playerB"`

	Ruleset rules.Ruleset `json:"ruleset"`

	Phase                 Phase `json:"phase"`
	TurnIndex             int64 `json:"turnIndex"`
	LastResolvedTurnIndex int64 `json:"lastResolvedTurnIndex"`
	// DeadlineUnixMs is meaningless while Phase is arena_open or ended.
	DeadlineUnixMs     int64 `json:"deadlineUnixMs"`
	NoActionStreakBoth int   `json:"noActionStreakBoth"`
	Version            int64 `json:"version"`
}

// IsParticipant reports whether playerID fights in this battle.
func (s *State) IsParticipant(playerID uuid.UUID) bool {
	return s.PlayerA.ID == playerID || s.PlayerB.ID == playerID
}

// Side returns the PlayerSide for playerID, or nil.
func (s *State) Side(playerID uuid.UUID) *PlayerSide {
	switch playerID {
	case s.PlayerA.ID:
		return &s.PlayerA
	case s.PlayerB.ID:
		return &s.PlayerB
	}
	return nil
}

// Opponent returns the other side's PlayerSide, or nil if playerID does not
// participate.
func (s *State) Opponent(playerID uuid.UUID) *PlayerSide {
	switch playerID {
	case s.PlayerA.ID:
		return &s.PlayerB
	case s.PlayerB.ID:
		return &s.PlayerA
	}
	return nil
}
