package combat

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/rules"
	"github.com/brawlpit/arena/core/types"
)

// Result is the outcome of resolving one turn.
type Result struct {
	HPA            int64
	HPB            int64
	NoActionStreak int

	Ended  bool
	Reason battle.EndReason
	// Winner is nil while the battle continues and on a draw.
	Winner *uuid.UUID

	// Events are ordered: PlayerDamaged entries, then TurnResolved, then
	// BattleEnded when the battle ends on this turn.
	Events []Event
}

// ResolveTurn deterministically resolves one turn from the pre-turn state
// snapshot and both players' canonical actions.
//
// It is a pure function: the PRNG streams for the two attack directions are
// derived from (battleId, matchId, seed, turnIndex), one per direction, and
// no clock is consulted. Both damages are computed from the pre-turn snapshot
// and applied against pre-turn HP, so a lethal exchange can be mutual.
func ResolveTurn(st *battle.State, actionA, actionB battle.PlayerAction) (*Result, error) {
	if st.Phase != battle.PhaseResolving {
		return nil, fmt.Errorf("%w: resolve called in phase %q", types.ErrInvalidState, st.Phase)
	}
	if actionA.TurnIndex != st.TurnIndex || actionB.TurnIndex != st.TurnIndex {
		return nil, fmt.Errorf("%w: action turn %d/%d does not match state turn %d",
			types.ErrInvalidState, actionA.TurnIndex, actionB.TurnIndex, st.TurnIndex)
	}

	bal := st.Ruleset.Balance
	seed := st.Ruleset.Seed

	rngAB := turnStream(st.BattleID, st.MatchID, seed, st.TurnIndex, dirAToB)
	rngBA := turnStream(st.BattleID, st.MatchID, seed, st.TurnIndex, dirBToA)

	aToB := resolveAttack(&st.PlayerA, &st.PlayerB, actionA, actionB, bal, rngAB)
	bToA := resolveAttack(&st.PlayerB, &st.PlayerA, actionB, actionA, bal, rngBA)

	res := &Result{
		HPA: clampHP(st.PlayerA.HP-bToA.Damage, st.PlayerA.MaxHP),
		HPB: clampHP(st.PlayerB.HP-aToB.Damage, st.PlayerB.MaxHP),
	}

	log := TurnLog{TurnIndex: st.TurnIndex, AToB: aToB, BToA: bToA}

	if actionA.IsNoAction() && actionB.IsNoAction() {
		res.NoActionStreak = st.NoActionStreakBoth + 1
		res.Events = append(res.Events, TurnResolved{TurnIndex: st.TurnIndex, Log: log})
		if res.NoActionStreak >= st.Ruleset.NoActionLimit {
			res.Ended = true
			res.Reason = battle.EndReasonDoubleForfeit
			res.Events = append(res.Events, BattleEnded{
				TurnIndex: st.TurnIndex,
				Reason:    battle.EndReasonDoubleForfeit,
			})
		}
		return res, nil
	}

	res.NoActionStreak = 0

	if aToB.Damage > 0 {
		res.Events = append(res.Events, PlayerDamaged{
			PlayerID:    st.PlayerB.ID,
			Damage:      aToB.Damage,
			RemainingHP: res.HPB,
			TurnIndex:   st.TurnIndex,
		})
	}
	if bToA.Damage > 0 {
		res.Events = append(res.Events, PlayerDamaged{
			PlayerID:    st.PlayerA.ID,
			Damage:      bToA.Damage,
			RemainingHP: res.HPA,
			TurnIndex:   st.TurnIndex,
		})
	}
	res.Events = append(res.Events, TurnResolved{TurnIndex: st.TurnIndex, Log: log})

	deadA, deadB := res.HPA == 0, res.HPB == 0
	if deadA || deadB {
		res.Ended = true
		res.Reason = battle.EndReasonNormal
		switch {
		case deadA && !deadB:
			winner := st.PlayerB.ID
			res.Winner = &winner
		case deadB && !deadA:
			winner := st.PlayerA.ID
			res.Winner = &winner
		}
		res.Events = append(res.Events, BattleEnded{
			TurnIndex: st.TurnIndex,
			Reason:    battle.EndReasonNormal,
			Winner:    res.Winner,
		})
	}

	return res, nil
}

// resolveAttack resolves one attack direction. The step order is fixed and
// must not change: no-action short-circuit, dodge roll, crit roll, block
// branch, damage roll, final away-from-zero rounding.
func resolveAttack(attacker, defender *battle.PlayerSide, attack, defense battle.PlayerAction, bal rules.CombatBalance, rng roller) AttackResolution {
	out := AttackResolution{
		AttackerID:         attacker.ID,
		DefenderID:         defender.ID,
		AttackZone:         attack.AttackZone,
		BlockZonePrimary:   defense.BlockZonePrimary,
		BlockZoneSecondary: defense.BlockZoneSecondary,
	}

	if attack.IsNoAction() {
		out.Outcome = OutcomeNoAction
		return out
	}

	atk := Derive(attacker.Stats, bal)
	def := Derive(defender.Stats, bal)

	zoneMatched := defense.HasValidBlock() &&
		(attack.AttackZone == defense.BlockZonePrimary || attack.AttackZone == defense.BlockZoneSecondary)

	if rng.Float64() < DodgeChance(atk, def, bal) {
		out.Outcome = OutcomeDodged
		out.WasBlocked = zoneMatched
		return out
	}

	crit := rng.Float64() < CritChance(atk, def, bal)
	hybrid := false

	if zoneMatched {
		out.WasBlocked = true
		switch {
		case crit && bal.CritMode == rules.CritBypassBlock:
			out.Outcome = OutcomeCriticalBypassBlock
		case crit && bal.CritMode == rules.CritHybrid:
			out.Outcome = OutcomeCriticalHybridBlock
			hybrid = true
		default:
			out.Outcome = OutcomeBlocked
			return out
		}
	}

	damage := uniformDecimal(rng, atk.DamageMin, atk.DamageMax)
	if crit {
		damage *= bal.CritMultiplier
	}
	if hybrid {
		damage *= bal.HybridBlockMultiplier
	}

	rounded := int64(math.Round(damage))

	if crit {
		// Critical outcomes always deal damage.
		if rounded < 1 {
			rounded = 1
		}
		out.Critical = true
		if !zoneMatched {
			out.Outcome = OutcomeCriticalHit
		}
		out.Damage = rounded
		return out
	}

	if rounded <= 0 {
		out.Outcome = OutcomeBlocked
		return out
	}
	out.Outcome = OutcomeHit
	out.Damage = rounded
	return out
}

func clampHP(hp, max int64) int64 {
	if hp < 0 {
		return 0
	}
	if hp > max {
		return max
	}
	return hp
}
