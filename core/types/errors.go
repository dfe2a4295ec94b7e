package types

import "errors"

// Common errors.
var (
	// Battle errors
	ErrBattleNotFound = errors.New("battle not found")
	ErrNotParticipant = errors.New("player is not a battle participant")
	ErrInvalidState   = errors.New("invalid battle state")
	ErrCorruptedState = errors.New("corrupted battle state")

	// Ruleset errors
	ErrInvalidRuleset = errors.New("invalid ruleset")
	ErrInvalidBalance = errors.New("invalid combat balance")

	// Profile errors
	ErrProfileNotFound = errors.New("player profile not found")
)
