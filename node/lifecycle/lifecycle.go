// Package lifecycle turns external BattleCreated events into initialized
// battle state with Turn 1 open.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/combat"
	"github.com/brawlpit/arena/core/rules"
	"github.com/brawlpit/arena/core/types"
	"github.com/brawlpit/arena/node/bus"
	"github.com/brawlpit/arena/node/notify"
	"github.com/brawlpit/arena/node/profile"
	"github.com/brawlpit/arena/node/store"
)

// Service handles battle creation.
type Service struct {
	store    store.Store
	profiles profile.Source
	balance  rules.BalanceProvider
	notifier notify.Notifier
	clock    types.Clock
	log      *zap.SugaredLogger
}

// New creates the lifecycle service.
func New(st store.Store, profiles profile.Source, balance rules.BalanceProvider, notifier notify.Notifier, clock types.Clock, log *zap.Logger) *Service {
	return &Service{
		store:    st,
		profiles: profiles,
		balance:  balance,
		notifier: notifier,
		clock:    clock,
		log:      log.Sugar(),
	}
}

// HandleBattleCreated initializes state and opens Turn 1. Every step is safe
// under at-least-once delivery: initialization is create-if-absent, opening
// the turn is a CAS, and notifications are emitted only when the open
// committed. Invalid events are logged and treated as handled so the bus does
// not redeliver them forever.
func (s *Service) HandleBattleCreated(ctx context.Context, ev bus.BattleCreated) error {
	ruleset, err := rules.Normalize(ev.Ruleset, s.balance)
	if err != nil {
		if errors.Is(err, types.ErrInvalidRuleset) || errors.Is(err, types.ErrInvalidBalance) {
			s.log.Warnw("dropping battle created with invalid ruleset",
				"battle", ev.BattleID, "error", err)
			return nil
		}
		return fmt.Errorf("normalize ruleset for battle %s: %w", ev.BattleID, err)
	}

	statsA, err := s.profiles.Stats(ctx, ev.PlayerAID)
	if err != nil {
		if errors.Is(err, types.ErrProfileNotFound) {
			s.log.Warnw("dropping battle created with unknown player",
				"battle", ev.BattleID, "player", ev.PlayerAID)
			return nil
		}
		return fmt.Errorf("resolve profile %s: %w", ev.PlayerAID, err)
	}
	statsB, err := s.profiles.Stats(ctx, ev.PlayerBID)
	if err != nil {
		if errors.Is(err, types.ErrProfileNotFound) {
			s.log.Warnw("dropping battle created with unknown player",
				"battle", ev.BattleID, "player", ev.PlayerBID)
			return nil
		}
		return fmt.Errorf("resolve profile %s: %w", ev.PlayerBID, err)
	}

	hpA := combat.Derive(statsA, ruleset.Balance).HPMax
	hpB := combat.Derive(statsB, ruleset.Balance).HPMax

	initial := &battle.State{
		BattleID: ev.BattleID,
		MatchID:  ev.MatchID,
		PlayerA:  battle.PlayerSide{ID: ev.PlayerAID, Stats: statsA, MaxHP: hpA, HP: hpA},
		PlayerB:  battle.PlayerSide{ID: ev.PlayerBID, Stats: statsB, MaxHP: hpB, HP: hpB},
		Ruleset:  ruleset,
		Phase:    battle.PhaseArenaOpen,
		Version:  1,
	}

	created, err := s.store.TryInitialize(ctx, initial)
	if err != nil {
		return err
	}
	if !created {
		s.log.Debugw("battle already initialized", "battle", ev.BattleID)
	}

	// A redelivery must still try to open Turn 1, so proceed regardless of
	// whether this delivery created the record.
	deadline := s.clock.Now().Add(time.Duration(ruleset.TurnSeconds) * time.Second)
	opened, err := s.store.TryOpenTurn(ctx, ev.BattleID, 1, deadline)
	if err != nil {
		return err
	}
	if !opened {
		// Already open, already past turn 1, or already ended. Idempotent:
		// emit nothing.
		return nil
	}

	st, err := s.store.GetState(ctx, ev.BattleID)
	if err != nil {
		return err
	}

	if err := s.notifier.BattleReady(ctx, notify.BattleReadyMsg{
		BattleID:  st.BattleID,
		PlayerAID: st.PlayerA.ID,
		PlayerBID: st.PlayerB.ID,
	}); err != nil {
		s.log.Errorw("battle ready push failed", "battle", ev.BattleID, "error", err)
	}
	if err := s.notifier.TurnOpened(ctx, notify.TurnOpenedMsg{
		BattleID:       st.BattleID,
		TurnIndex:      st.TurnIndex,
		DeadlineUnixMs: st.DeadlineUnixMs,
	}); err != nil {
		s.log.Errorw("turn opened push failed", "battle", ev.BattleID, "error", err)
	}

	s.log.Infow("battle ready",
		"battle", ev.BattleID, "match", ev.MatchID,
		"playerA", ev.PlayerAID, "playerB", ev.PlayerBID,
		"turnSeconds", ruleset.TurnSeconds)
	return nil
}
