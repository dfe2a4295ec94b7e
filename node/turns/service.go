// Package turns orchestrates action submission and turn resolution.
package turns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/combat"
	"github.com/brawlpit/arena/core/types"
	"github.com/brawlpit/arena/node/bus"
	"github.com/brawlpit/arena/node/intake"
	"github.com/brawlpit/arena/node/notify"
	"github.com/brawlpit/arena/node/store"
)

// Service is the turn orchestrator. Both the submission path (early
// resolution once both players acted) and the deadline worker path end up in
// ResolveTurn; the store's CAS transitions arbitrate between concurrent
// resolvers, and notifications are emitted only by the caller whose
// transition committed.
type Service struct {
	store     store.Store
	pipeline  *intake.Pipeline
	notifier  notify.Notifier
	publisher bus.Publisher
	clock     types.Clock
	log       *zap.SugaredLogger
}

// New creates the turn service.
func New(st store.Store, notifier notify.Notifier, publisher bus.Publisher, clock types.Clock, log *zap.Logger) *Service {
	return &Service{
		store:     st,
		pipeline:  intake.New(clock),
		notifier:  notifier,
		publisher: publisher,
		clock:     clock,
		log:       log.Sugar(),
	}
}

// SubmitAction normalizes and stores one player's action for the current
// turn, then resolves early when both players have submitted. Malformed
// payloads are stored as NoAction; duplicate submissions silently succeed.
func (s *Service) SubmitAction(ctx context.Context, battleID, playerID uuid.UUID, clientTurnIndex int64, payload []byte) error {
	st, err := s.store.GetState(ctx, battleID)
	if err != nil {
		return err
	}
	opponent := st.Opponent(playerID)
	if opponent == nil {
		return fmt.Errorf("%w: player %s in battle %s", types.ErrNotParticipant, playerID, battleID)
	}

	cmd := s.pipeline.Normalize(st, playerID, clientTurnIndex, payload)
	if cmd.RejectReason != battle.RejectNone {
		actionsRejected.WithLabelValues(string(cmd.RejectReason)).Inc()
		s.log.Debugw("action normalized to no-action",
			"battle", battleID, "player", playerID,
			"turn", st.TurnIndex, "reason", cmd.RejectReason)
	}

	res, err := s.store.StoreActionAndCheckBothSubmitted(ctx, battleID, st.TurnIndex, playerID, opponent.ID, &cmd)
	if err != nil {
		return err
	}
	if res.Stored {
		actionsAccepted.Inc()
	} else {
		actionsDuplicate.Inc()
	}

	if res.Stored && res.BothSubmitted {
		if _, err := s.ResolveTurn(ctx, battleID); err != nil {
			// The deadline worker redelivers this turn once the lease window
			// passes, so an early-resolution failure is not surfaced to the
			// submitting client.
			s.log.Errorw("early resolution failed",
				"battle", battleID, "turn", st.TurnIndex, "error", err)
		}
	}
	return nil
}

// ResolveTurn drives the current turn of a battle through resolution.
// Returns true when this call committed a transition. It is safe to call
// concurrently and repeatedly: already-resolved turns, lost CAS races and
// already-ended battles all return false without side effects.
func (s *Service) ResolveTurn(ctx context.Context, battleID uuid.UUID) (bool, error) {
	st, err := s.store.GetState(ctx, battleID)
	if err != nil {
		return false, err
	}
	if st.TurnIndex <= st.LastResolvedTurnIndex {
		return false, nil
	}

	switch st.Phase {
	case battle.PhaseTurnOpen:
		ok, err := s.store.TryMarkTurnResolving(ctx, battleID, st.TurnIndex)
		if err != nil {
			return false, err
		}
		if !ok {
			resolveRaces.Inc()
			return false, nil
		}
	case battle.PhaseResolving:
		// A previous resolver died between marking and committing. Recompute
		// deterministically from the stored actions; the commit CAS below
		// still admits only one winner.
	default:
		return false, nil
	}

	st, err = s.store.GetState(ctx, battleID)
	if err != nil {
		return false, err
	}
	if st.Phase != battle.PhaseResolving {
		return false, nil
	}

	cmdA, cmdB, err := s.store.GetActions(ctx, battleID, st.TurnIndex, st.PlayerA.ID, st.PlayerB.ID)
	if err != nil {
		return false, err
	}
	actionA := intake.FromStored(cmdA, st.PlayerA.ID, st.TurnIndex)
	actionB := intake.FromStored(cmdB, st.PlayerB.ID, st.TurnIndex)

	result, err := combat.ResolveTurn(st, actionA, actionB)
	if err != nil {
		return false, err
	}

	if result.Ended {
		return s.commitEnd(ctx, st, result)
	}
	return s.commitNextTurn(ctx, st, result)
}

func (s *Service) commitEnd(ctx context.Context, st *battle.State, result *combat.Result) (bool, error) {
	endRes, err := s.store.EndBattleAndMarkResolved(ctx, st.BattleID, st.TurnIndex,
		result.NoActionStreak, result.HPA, result.HPB)
	if err != nil {
		return false, err
	}
	switch endRes {
	case store.AlreadyEnded:
		// Some other resolver ended the battle; its commit already emitted.
		return false, nil
	case store.NotCommitted:
		s.log.Warnw("end transition not committed",
			"battle", st.BattleID, "turn", st.TurnIndex)
		resolveRaces.Inc()
		return false, nil
	}

	s.emitEvents(ctx, st, result.Events)
	turnsResolved.Inc()
	battlesEnded.WithLabelValues(string(result.Reason)).Inc()
	s.log.Infow("battle ended",
		"battle", st.BattleID, "turn", st.TurnIndex,
		"reason", result.Reason, "winner", result.Winner)
	return true, nil
}

func (s *Service) commitNextTurn(ctx context.Context, st *battle.State, result *combat.Result) (bool, error) {
	// The next deadline anchors to now, not to the previous deadline: turn
	// windows keep a consistent duration no matter how long resolution took.
	nextIdx := st.TurnIndex + 1
	nextDeadline := s.clock.Now().Add(time.Duration(st.Ruleset.TurnSeconds) * time.Second)

	ok, err := s.store.MarkTurnResolvedAndOpenNext(ctx, st.BattleID, st.TurnIndex, nextIdx,
		nextDeadline, result.NoActionStreak, result.HPA, result.HPB)
	if err != nil {
		return false, err
	}
	if !ok {
		resolveRaces.Inc()
		return false, nil
	}

	s.emitEvents(ctx, st, result.Events)
	if err := s.notifier.TurnOpened(ctx, notify.TurnOpenedMsg{
		BattleID:       st.BattleID,
		TurnIndex:      nextIdx,
		DeadlineUnixMs: nextDeadline.UnixMilli(),
	}); err != nil {
		s.log.Errorw("turn opened push failed", "battle", st.BattleID, "error", err)
	}
	turnsResolved.Inc()
	return true, nil
}

// emitEvents pushes the engine's ordered event list. The caller guarantees
// its transition committed, so per-battle clients see each turn's events
// exactly once.
func (s *Service) emitEvents(ctx context.Context, st *battle.State, events []combat.Event) {
	for _, ev := range events {
		switch ev := ev.(type) {
		case combat.PlayerDamaged:
			if err := s.notifier.PlayerDamaged(ctx, notify.PlayerDamagedMsg{
				BattleID:    st.BattleID,
				PlayerID:    ev.PlayerID,
				Damage:      ev.Damage,
				RemainingHP: ev.RemainingHP,
				TurnIndex:   ev.TurnIndex,
			}); err != nil {
				s.log.Errorw("player damaged push failed", "battle", st.BattleID, "error", err)
			}
		case combat.TurnResolved:
			if err := s.notifier.TurnResolved(ctx, notify.TurnResolvedMsg{
				BattleID:  st.BattleID,
				TurnIndex: ev.TurnIndex,
				Log:       ev.Log,
			}); err != nil {
				s.log.Errorw("turn resolved push failed", "battle", st.BattleID, "error", err)
			}
		case combat.BattleEnded:
			endedAt := s.clock.Now().UnixMilli()
			if err := s.notifier.BattleEnded(ctx, notify.BattleEndedMsg{
				BattleID:      st.BattleID,
				Reason:        ev.Reason,
				WinnerID:      ev.Winner,
				EndedAtUnixMs: endedAt,
			}); err != nil {
				s.log.Errorw("battle ended push failed", "battle", st.BattleID, "error", err)
			}
			if err := s.publisher.PublishBattleEnded(ctx, bus.BattleEnded{
				BattleID:      st.BattleID,
				MatchID:       st.MatchID,
				Reason:        ev.Reason,
				WinnerID:      ev.Winner,
				EndedAtUnixMs: endedAt,
				Version:       1,
			}); err != nil {
				s.log.Errorw("battle ended publish failed", "battle", st.BattleID, "error", err)
			}
		}
	}
}
