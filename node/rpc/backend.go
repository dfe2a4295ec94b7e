// Package rpc implements the real-time client channel of the battle server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/rules"
	"github.com/brawlpit/arena/core/types"
	"github.com/brawlpit/arena/node/store"
	"github.com/brawlpit/arena/node/turns"
)

// Snapshot is the state view returned to a joining client.
type Snapshot struct {
	BattleID              uuid.UUID     `json:"battleId"`
	PlayerAID             uuid.UUID     `json:"playerAId"`
	PlayerBID             uuid.UUID     `json:"playerBId"`
	Ruleset               rules.Ruleset `json:"ruleset"`
	Phase                 battle.Phase  `json:"phase"`
	TurnIndex             int64         `json:"turnIndex"`
	DeadlineUnixMs        int64         `json:"deadlineUnixMs"`
	NoActionStreakBoth    int           `json:"noActionStreakBoth"`
	LastResolvedTurnIndex int64         `json:"lastResolvedTurnIndex"`
	Version               int64         `json:"version"`
	HPA                   int64         `json:"hpA"`
	HPB                   int64         `json:"hpB"`
}

// Backend interface for client channel operations.
type Backend interface {
	// Snapshot returns the battle view for a participant.
	Snapshot(ctx context.Context, battleID, playerID uuid.UUID) (*Snapshot, error)

	// SubmitAction forwards a fire-and-forget action submission.
	SubmitAction(ctx context.Context, battleID, playerID uuid.UUID, turnIndex int64, payload json.RawMessage) error
}

// ServiceBackend implements Backend on the store and the turn service.
type ServiceBackend struct {
	store store.Store
	turns *turns.Service
}

// NewServiceBackend creates a ServiceBackend.
func NewServiceBackend(st store.Store, turnService *turns.Service) *ServiceBackend {
	return &ServiceBackend{store: st, turns: turnService}
}

// Snapshot implements Backend. Non-participants are rejected.
func (b *ServiceBackend) Snapshot(ctx context.Context, battleID, playerID uuid.UUID) (*Snapshot, error) {
	st, err := b.store.GetState(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !st.IsParticipant(playerID) {
		return nil, fmt.Errorf("%w: player %s in battle %s", types.ErrNotParticipant, playerID, battleID)
	}
	return &Snapshot{
		BattleID:              st.BattleID,
		PlayerAID:             st.PlayerA.ID,
		PlayerBID:             st.PlayerB.ID,
		Ruleset:               st.Ruleset,
		Phase:                 st.Phase,
		TurnIndex:             st.TurnIndex,
		DeadlineUnixMs:        st.DeadlineUnixMs,
		NoActionStreakBoth:    st.NoActionStreakBoth,
		LastResolvedTurnIndex: st.LastResolvedTurnIndex,
		Version:               st.Version,
		HPA:                   st.PlayerA.HP,
		HPB:                   st.PlayerB.HP,
	}, nil
}

// SubmitAction implements Backend.
func (b *ServiceBackend) SubmitAction(ctx context.Context, battleID, playerID uuid.UUID, turnIndex int64, payload json.RawMessage) error {
	return b.turns.SubmitAction(ctx, battleID, playerID, turnIndex, payload)
}
