package combat

import (
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/rules"
	"github.com/brawlpit/arena/core/types"
)

// flatCurve pins a chance to a constant so test outcomes do not depend on the
// PRNG draw values, only on the draw order.
func flatCurve(p float64) rules.ChanceCurve {
	return rules.ChanceCurve{Base: p, Min: p, Max: p, Scale: 0, KBase: 1}
}

// testBalance has dodge and crit disabled by default. Individual tests flip
// the curves to 1.0 to force a branch.
func testBalance() rules.CombatBalance {
	return rules.CombatBalance{
		BaseHP:       100,
		HPPerStamina: 10,

		BaseWeaponDamage:   10,
		DamagePerStrength:  1,
		DamagePerAgility:   0,
		DamagePerIntellect: 0,

		SpreadMin: 0.999,
		SpreadMax: 1.001,

		MfPerAgility:   5,
		MfPerIntellect: 5,

		Dodge: flatCurve(0),
		Crit:  flatCurve(0),

		CritMode:              rules.CritBypassBlock,
		CritMultiplier:        2,
		HybridBlockMultiplier: 0.5,
	}
}

func testState(bal rules.CombatBalance) *battle.State {
	a := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	stats := battle.PlayerStats{Strength: 10, Stamina: 10, Agility: 5, Intellect: 5}
	hp := Derive(stats, bal).HPMax

	return &battle.State{
		BattleID: uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		MatchID:  uuid.MustParse("44444444-4444-4444-4444-444444444444"),
		PlayerA:  battle.PlayerSide{ID: a, Stats: stats, MaxHP: hp, HP: hp},
		PlayerB:  battle.PlayerSide{ID: b, Stats: stats, MaxHP: hp, HP: hp},
		Ruleset: rules.Ruleset{
			Version:       1,
			TurnSeconds:   10,
			NoActionLimit: 3,
			Seed:          7,
			Balance:       bal,
		},
		Phase:                 battle.PhaseResolving,
		TurnIndex:             1,
		LastResolvedTurnIndex: 0,
		Version:               3,
	}
}

func attack(st *battle.State, playerID uuid.UUID, zone types.Zone) battle.PlayerAction {
	return battle.PlayerAction{
		PlayerID:   playerID,
		TurnIndex:  st.TurnIndex,
		AttackZone: zone,
		Quality:    battle.QualityValid,
	}
}

func attackWithBlock(st *battle.State, playerID uuid.UUID, zone, blockP, blockS types.Zone) battle.PlayerAction {
	a := attack(st, playerID, zone)
	a.BlockZonePrimary = blockP
	a.BlockZoneSecondary = blockS
	return a
}

func noAction(st *battle.State, playerID uuid.UUID) battle.PlayerAction {
	return battle.NoAction(playerID, st.TurnIndex, battle.RejectMissingStored)
}

func TestResolveTurnRequiresResolvingPhase(t *testing.T) {
	st := testState(testBalance())
	st.Phase = battle.PhaseTurnOpen
	_, err := ResolveTurn(st, attack(st, st.PlayerA.ID, types.ZoneHead), attack(st, st.PlayerB.ID, types.ZoneChest))
	if err == nil {
		t.Fatal("expected error resolving outside resolving phase")
	}
}

func TestResolveTurnRequiresMatchingTurnIndex(t *testing.T) {
	st := testState(testBalance())
	a := attack(st, st.PlayerA.ID, types.ZoneHead)
	b := attack(st, st.PlayerB.ID, types.ZoneChest)
	b.TurnIndex = st.TurnIndex + 1
	if _, err := ResolveTurn(st, a, b); err == nil {
		t.Fatal("expected error on mismatched action turn index")
	}
}

func TestResolveTurnDeterministic(t *testing.T) {
	st := testState(rules.DefaultBalance())
	a := attackWithBlock(st, st.PlayerA.ID, types.ZoneHead, types.ZoneChest, types.ZoneStomach)
	b := attackWithBlock(st, st.PlayerB.ID, types.ZoneLegs, types.ZoneHead, types.ZoneChest)

	first, err := ResolveTurn(st, a, b)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	second, err := ResolveTurn(st, a, b)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("resolution not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestResolveTurnSeedChangesDraws(t *testing.T) {
	// Not a strict guarantee for every seed pair, but these two must differ
	// somewhere across a handful of turns if the seed feeds the streams.
	base := testState(rules.DefaultBalance())
	other := testState(rules.DefaultBalance())
	other.Ruleset.Seed = base.Ruleset.Seed + 1

	differs := false
	for turn := int64(1); turn <= 8 && !differs; turn++ {
		base.TurnIndex, other.TurnIndex = turn, turn
		base.LastResolvedTurnIndex, other.LastResolvedTurnIndex = turn-1, turn-1
		a1 := attack(base, base.PlayerA.ID, types.ZoneHead)
		b1 := attack(base, base.PlayerB.ID, types.ZoneLegs)
		r1, err := ResolveTurn(base, a1, b1)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		r2, err := ResolveTurn(other, attack(other, other.PlayerA.ID, types.ZoneHead), attack(other, other.PlayerB.ID, types.ZoneLegs))
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if !reflect.DeepEqual(r1, r2) {
			differs = true
		}
	}
	if !differs {
		t.Error("changing the seed never changed any resolution")
	}
}

func TestDirectionStreamsIndependent(t *testing.T) {
	// Changing only B's attack zone must not change the a->b resolution: each
	// direction draws from its own stream.
	st := testState(rules.DefaultBalance())
	a := attack(st, st.PlayerA.ID, types.ZoneHead)

	r1, err := ResolveTurn(st, a, attack(st, st.PlayerB.ID, types.ZoneLegs))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	r2, err := ResolveTurn(st, a, attack(st, st.PlayerB.ID, types.ZoneStomach))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	log1 := findTurnLog(t, r1.Events)
	log2 := findTurnLog(t, r2.Events)
	if !reflect.DeepEqual(log1.AToB, log2.AToB) {
		t.Errorf("a->b resolution changed with B's attack zone:\nfirst:  %+v\nsecond: %+v", log1.AToB, log2.AToB)
	}
}

func findTurnLog(t *testing.T, events []Event) TurnLog {
	t.Helper()
	for _, ev := range events {
		if tr, ok := ev.(TurnResolved); ok {
			return tr.Log
		}
	}
	t.Fatal("no TurnResolved event emitted")
	return TurnLog{}
}

func TestMatchedBlockStopsDamage(t *testing.T) {
	st := testState(testBalance()) // dodge and crit disabled

	// A attacks head; B blocks head+chest.
	a := attack(st, st.PlayerA.ID, types.ZoneHead)
	b := attackWithBlock(st, st.PlayerB.ID, types.ZoneLegs, types.ZoneHead, types.ZoneChest)

	res, err := ResolveTurn(st, a, b)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	log := findTurnLog(t, res.Events)

	if log.AToB.Outcome != OutcomeBlocked {
		t.Errorf("a->b outcome = %s, want blocked", log.AToB.Outcome)
	}
	if !log.AToB.WasBlocked || log.AToB.Damage != 0 {
		t.Errorf("blocked attack should record WasBlocked and zero damage: %+v", log.AToB)
	}
	if res.HPB != st.PlayerB.MaxHP {
		t.Errorf("blocked defender lost HP: %d -> %d", st.PlayerB.MaxHP, res.HPB)
	}

	// B's unblocked attack lands.
	if log.BToA.Outcome != OutcomeHit {
		t.Errorf("b->a outcome = %s, want hit", log.BToA.Outcome)
	}
	if log.BToA.Damage <= 0 {
		t.Errorf("unblocked hit dealt no damage: %+v", log.BToA)
	}
	if res.HPA != st.PlayerA.MaxHP-log.BToA.Damage {
		t.Errorf("HPA = %d, want %d", res.HPA, st.PlayerA.MaxHP-log.BToA.Damage)
	}
}

func TestDodgeBeatsEverything(t *testing.T) {
	bal := testBalance()
	bal.Dodge = flatCurve(1)
	bal.Crit = flatCurve(1)
	st := testState(bal)

	a := attack(st, st.PlayerA.ID, types.ZoneHead)
	b := attackWithBlock(st, st.PlayerB.ID, types.ZoneChest, types.ZoneHead, types.ZoneChest)

	res, err := ResolveTurn(st, a, b)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	log := findTurnLog(t, res.Events)

	for _, dir := range []AttackResolution{log.AToB, log.BToA} {
		if dir.Outcome != OutcomeDodged {
			t.Errorf("outcome = %s, want dodged", dir.Outcome)
		}
		if dir.Damage != 0 {
			t.Errorf("dodged attack dealt damage: %+v", dir)
		}
	}
	// The zone match is still recorded on a dodge.
	if !log.AToB.WasBlocked {
		t.Error("a->b zone match not recorded on dodge")
	}
	if res.HPA != st.PlayerA.MaxHP || res.HPB != st.PlayerB.MaxHP {
		t.Error("dodged turn changed HP")
	}
}

func TestCritBypassesBlock(t *testing.T) {
	bal := testBalance()
	bal.Crit = flatCurve(1)
	bal.CritMode = rules.CritBypassBlock
	st := testState(bal)

	a := attack(st, st.PlayerA.ID, types.ZoneHead)
	b := attackWithBlock(st, st.PlayerB.ID, types.ZoneLegs, types.ZoneHead, types.ZoneChest)

	res, err := ResolveTurn(st, a, b)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	log := findTurnLog(t, res.Events)

	if log.AToB.Outcome != OutcomeCriticalBypassBlock {
		t.Errorf("a->b outcome = %s, want critical_bypass_block", log.AToB.Outcome)
	}
	if !log.AToB.Critical || log.AToB.Damage < 1 {
		t.Errorf("critical outcome must deal at least 1 damage: %+v", log.AToB)
	}
	if log.BToA.Outcome != OutcomeCriticalHit {
		t.Errorf("b->a outcome = %s, want critical_hit", log.BToA.Outcome)
	}
}

func TestCritHybridReducesBlockedDamage(t *testing.T) {
	bal := testBalance()
	bal.Crit = flatCurve(1)
	bal.CritMode = rules.CritHybrid
	st := testState(bal)

	a := attack(st, st.PlayerA.ID, types.ZoneHead)
	b := attackWithBlock(st, st.PlayerB.ID, types.ZoneLegs, types.ZoneHead, types.ZoneChest)

	res, err := ResolveTurn(st, a, b)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	log := findTurnLog(t, res.Events)

	if log.AToB.Outcome != OutcomeCriticalHybridBlock {
		t.Errorf("a->b outcome = %s, want critical_hybrid_blocked", log.AToB.Outcome)
	}
	if log.AToB.Damage < 1 {
		t.Errorf("hybrid blocked crit must deal at least 1 damage: %+v", log.AToB)
	}
	// The unblocked crit deals strictly more than the hybrid-blocked one when
	// the multiplier halves the roll and the rolls sit near the same base.
	if log.BToA.Damage <= log.AToB.Damage {
		t.Errorf("hybrid multiplier did not reduce blocked damage: blocked=%d open=%d",
			log.AToB.Damage, log.BToA.Damage)
	}
}

func TestTinyDamageCollapsesToBlocked(t *testing.T) {
	bal := testBalance()
	bal.BaseWeaponDamage = 0.1
	bal.DamagePerStrength = 0
	st := testState(bal)

	// DamageMin = floor(0.0999) = 0, DamageMax = ceil(0.1001) = 1; the roll
	// rounds to 0 often enough that at least one direction must collapse.
	sawBlocked := false
	for turn := int64(1); turn <= 16 && !sawBlocked; turn++ {
		st.TurnIndex = turn
		st.LastResolvedTurnIndex = turn - 1
		res, err := ResolveTurn(st,
			attack(st, st.PlayerA.ID, types.ZoneHead),
			attack(st, st.PlayerB.ID, types.ZoneLegs))
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		log := findTurnLog(t, res.Events)
		for _, dir := range []AttackResolution{log.AToB, log.BToA} {
			switch dir.Outcome {
			case OutcomeBlocked:
				if dir.Damage != 0 {
					t.Errorf("blocked outcome with damage: %+v", dir)
				}
				sawBlocked = true
			case OutcomeHit:
				if dir.Damage < 1 {
					t.Errorf("hit outcome with zero damage: %+v", dir)
				}
			default:
				t.Errorf("unexpected outcome %s with dodge and crit disabled", dir.Outcome)
			}
		}
	}
	if !sawBlocked {
		t.Error("round-to-zero never collapsed to blocked across 16 turns")
	}
}

func TestDoubleNoActionStreakAndForfeit(t *testing.T) {
	st := testState(testBalance())
	st.NoActionStreakBoth = 1

	res, err := ResolveTurn(st, noAction(st, st.PlayerA.ID), noAction(st, st.PlayerB.ID))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.NoActionStreak != 2 {
		t.Errorf("streak = %d, want 2", res.NoActionStreak)
	}
	if res.Ended {
		t.Error("battle ended below the no-action limit")
	}

	st.NoActionStreakBoth = 2
	res, err = ResolveTurn(st, noAction(st, st.PlayerA.ID), noAction(st, st.PlayerB.ID))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !res.Ended || res.Reason != battle.EndReasonDoubleForfeit {
		t.Fatalf("expected double forfeit, got %+v", res)
	}
	if res.Winner != nil {
		t.Errorf("double forfeit must have no winner, got %v", res.Winner)
	}

	last := res.Events[len(res.Events)-1]
	ended, ok := last.(BattleEnded)
	if !ok {
		t.Fatalf("last event = %T, want BattleEnded", last)
	}
	if ended.Reason != battle.EndReasonDoubleForfeit {
		t.Errorf("end reason = %s, want double_forfeit", ended.Reason)
	}
}

func TestSingleNoActionResetsStreak(t *testing.T) {
	st := testState(testBalance())
	st.NoActionStreakBoth = 2

	res, err := ResolveTurn(st, attack(st, st.PlayerA.ID, types.ZoneHead), noAction(st, st.PlayerB.ID))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.NoActionStreak != 0 {
		t.Errorf("streak = %d, want 0 after a one-sided action", res.NoActionStreak)
	}
	if res.Ended {
		t.Error("one-sided no-action must not end the battle")
	}

	log := findTurnLog(t, res.Events)
	if log.BToA.Outcome != OutcomeNoAction {
		t.Errorf("b->a outcome = %s, want no_action", log.BToA.Outcome)
	}
}

func TestLethalDamageEndsBattle(t *testing.T) {
	st := testState(testBalance())
	st.PlayerB.HP = 1

	res, err := ResolveTurn(st, attack(st, st.PlayerA.ID, types.ZoneHead), noAction(st, st.PlayerB.ID))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !res.Ended || res.Reason != battle.EndReasonNormal {
		t.Fatalf("expected normal end, got %+v", res)
	}
	if res.HPB != 0 {
		t.Errorf("HPB = %d, want 0", res.HPB)
	}
	if res.Winner == nil || *res.Winner != st.PlayerA.ID {
		t.Errorf("winner = %v, want player A", res.Winner)
	}
}

func TestMutualDeathIsDraw(t *testing.T) {
	st := testState(testBalance())
	st.PlayerA.HP = 1
	st.PlayerB.HP = 1

	// Both damages come from the pre-turn snapshot, so the exchange is mutual.
	res, err := ResolveTurn(st,
		attack(st, st.PlayerA.ID, types.ZoneHead),
		attack(st, st.PlayerB.ID, types.ZoneLegs))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !res.Ended || res.Reason != battle.EndReasonNormal {
		t.Fatalf("expected normal end, got %+v", res)
	}
	if res.HPA != 0 || res.HPB != 0 {
		t.Errorf("HP = (%d, %d), want (0, 0)", res.HPA, res.HPB)
	}
	if res.Winner != nil {
		t.Errorf("mutual death must have no winner, got %v", res.Winner)
	}
}

func TestEventOrdering(t *testing.T) {
	st := testState(testBalance())
	res, err := ResolveTurn(st,
		attack(st, st.PlayerA.ID, types.ZoneHead),
		attack(st, st.PlayerB.ID, types.ZoneLegs))
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	sawTurnResolved := false
	for _, ev := range res.Events {
		switch ev.(type) {
		case PlayerDamaged:
			if sawTurnResolved {
				t.Error("PlayerDamaged emitted after TurnResolved")
			}
		case TurnResolved:
			if sawTurnResolved {
				t.Error("TurnResolved emitted twice")
			}
			sawTurnResolved = true
		case BattleEnded:
			if !sawTurnResolved {
				t.Error("BattleEnded emitted before TurnResolved")
			}
		}
	}
	if !sawTurnResolved {
		t.Error("no TurnResolved event emitted")
	}
}

func TestDeriveStats(t *testing.T) {
	bal := rules.DefaultBalance()
	stats := battle.PlayerStats{Strength: 10, Stamina: 5, Agility: 4, Intellect: 3}
	d := Derive(stats, bal)

	wantHP := int64(80 + 5*12)
	if d.HPMax != wantHP {
		t.Errorf("HPMax = %d, want %d", d.HPMax, wantHP)
	}
	wantBase := 10 + 10*0.9 + 4*0.3 + 3*0.2
	if d.BaseDamage != wantBase {
		t.Errorf("BaseDamage = %v, want %v", d.BaseDamage, wantBase)
	}
	if d.DamageMin >= d.DamageMax {
		t.Errorf("DamageMin %d not below DamageMax %d", d.DamageMin, d.DamageMax)
	}
}

func TestChanceClamping(t *testing.T) {
	curve := rules.ChanceCurve{Base: 0.1, Min: 0.02, Max: 0.45, Scale: 0.35, KBase: 120}

	if got := Chance(curve, 0); got != 0.1 {
		t.Errorf("Chance(0) = %v, want base 0.1", got)
	}
	// Large positive diff approaches base+scale but is clamped at max.
	if got := Chance(curve, 1e12); got != 0.45 {
		t.Errorf("Chance(+inf) = %v, want max 0.45", got)
	}
	if got := Chance(curve, -1e12); got != 0.02 {
		t.Errorf("Chance(-inf) = %v, want min 0.02", got)
	}
	// Monotone in diff.
	if Chance(curve, 100) <= Chance(curve, -100) {
		t.Error("chance curve not increasing in diff")
	}
}
