// Package rules defines the battle ruleset and combat balance value objects.
//
// A ruleset is normalized exactly once, when a battle is initialized, and the
// normalized copy is frozen into the stored battle state. Everything that
// resolves turns later reads that frozen copy; configuration is never
// re-consulted mid-battle.
package rules

import (
	"fmt"

	"github.com/brawlpit/arena/core/types"
)

// Bounds and defaults for normalization.
const (
	DefaultTurnSeconds = 10
	MinTurnSeconds     = 1
	MaxTurnSeconds     = 60

	DefaultNoActionLimit = 3
	MinNoActionLimit     = 1
	MaxNoActionLimit     = 10
)

// CritMode selects how a critical hit interacts with a matched block.
type CritMode string

const (
	// CritBypassBlock ignores the block entirely on a critical hit.
	CritBypassBlock CritMode = "bypass_block"
	// CritHybrid applies the crit multiplier and then the hybrid block
	// multiplier, so a blocked crit still lands reduced damage.
	CritHybrid CritMode = "hybrid"
)

// ChanceCurve parameterizes the dodge and crit probability curves:
//
//	raw    = base + scale * diff / (|diff| + kBase)
//	chance = clamp(raw, min, max)
type ChanceCurve struct {
	Base  float64 `json:"base"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Scale float64 `json:"scale"`
	KBase float64 `json:"kBase"`
}

// CombatBalance carries every numeric knob of the combat model.
type CombatBalance struct {
	BaseHP       float64 `json:"baseHp"`
	HPPerStamina float64 `json:"hpPerStamina"`

	BaseWeaponDamage   float64 `json:"baseWeaponDamage"`
	DamagePerStrength  float64 `json:"damagePerStrength"`
	DamagePerAgility   float64 `json:"damagePerAgility"`
	DamagePerIntellect float64 `json:"damagePerIntellect"`

	// Damage spread multipliers. SpreadMin < SpreadMax is required; values
	// above 1 are legal on both ends.
	SpreadMin float64 `json:"spreadMin"`
	SpreadMax float64 `json:"spreadMax"`

	MfPerAgility   float64 `json:"mfPerAgility"`
	MfPerIntellect float64 `json:"mfPerIntellect"`

	Dodge ChanceCurve `json:"dodge"`
	Crit  ChanceCurve `json:"crit"`

	CritMode              CritMode `json:"critMode"`
	CritMultiplier        float64  `json:"critMultiplier"`
	HybridBlockMultiplier float64  `json:"hybridBlockMultiplier"`
}

// Validate checks the balance invariants.
func (b CombatBalance) Validate() error {
	if b.SpreadMin < 0 || b.SpreadMax < 0 {
		return fmt.Errorf("%w: negative damage spread", types.ErrInvalidBalance)
	}
	if b.SpreadMin >= b.SpreadMax {
		return fmt.Errorf("%w: spreadMin %v must be below spreadMax %v",
			types.ErrInvalidBalance, b.SpreadMin, b.SpreadMax)
	}
	if b.CritMode != CritBypassBlock && b.CritMode != CritHybrid {
		return fmt.Errorf("%w: unknown crit mode %q", types.ErrInvalidBalance, b.CritMode)
	}
	if b.CritMultiplier <= 0 {
		return fmt.Errorf("%w: non-positive crit multiplier", types.ErrInvalidBalance)
	}
	if b.CritMode == CritHybrid && b.HybridBlockMultiplier <= 0 {
		return fmt.Errorf("%w: non-positive hybrid block multiplier", types.ErrInvalidBalance)
	}
	for _, c := range []ChanceCurve{b.Dodge, b.Crit} {
		if c.Min > c.Max {
			return fmt.Errorf("%w: chance curve min above max", types.ErrInvalidBalance)
		}
	}
	return nil
}

// Descriptor is the wire form of a ruleset as carried by BattleCreated.
// The combat balance is not part of the descriptor; it comes from the
// configured BalanceProvider.
type Descriptor struct {
	Version       int   `json:"version"`
	TurnSeconds   int   `json:"turnSeconds"`
	NoActionLimit int   `json:"noActionLimit"`
	Seed          int64 `json:"seed"`
}

// Ruleset is the normalized, frozen rule configuration of one battle.
type Ruleset struct {
	Version       int           `json:"version"`
	TurnSeconds   int           `json:"turnSeconds"`
	NoActionLimit int           `json:"noActionLimit"`
	Seed          int64         `json:"seed"`
	Balance       CombatBalance `json:"balance"`
}

// BalanceProvider resolves the combat balance for a ruleset version.
type BalanceProvider interface {
	CombatBalance(version int) (CombatBalance, error)
}

// StaticBalanceProvider serves one balance for every version.
type StaticBalanceProvider struct {
	Value CombatBalance
}

// CombatBalance returns the static balance.
func (p StaticBalanceProvider) CombatBalance(int) (CombatBalance, error) {
	return p.Value, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize turns an incoming descriptor into a frozen Ruleset: defaults are
// applied, bounded fields are clamped, and the balance is resolved from the
// provider. Normalization is idempotent: normalizing an already-normalized
// ruleset's descriptor yields the same result.
func Normalize(d *Descriptor, provider BalanceProvider) (Ruleset, error) {
	if d == nil {
		return Ruleset{}, fmt.Errorf("%w: nil descriptor", types.ErrInvalidRuleset)
	}
	if d.Version <= 0 {
		return Ruleset{}, fmt.Errorf("%w: non-positive version %d", types.ErrInvalidRuleset, d.Version)
	}
	if d.TurnSeconds <= 0 {
		return Ruleset{}, fmt.Errorf("%w: non-positive turn seconds %d", types.ErrInvalidRuleset, d.TurnSeconds)
	}

	noActionLimit := d.NoActionLimit
	if noActionLimit == 0 {
		noActionLimit = DefaultNoActionLimit
	}

	balance, err := provider.CombatBalance(d.Version)
	if err != nil {
		return Ruleset{}, fmt.Errorf("resolve combat balance: %w", err)
	}
	if err := balance.Validate(); err != nil {
		return Ruleset{}, err
	}

	return Ruleset{
		Version:       d.Version,
		TurnSeconds:   clampInt(d.TurnSeconds, MinTurnSeconds, MaxTurnSeconds),
		NoActionLimit: clampInt(noActionLimit, MinNoActionLimit, MaxNoActionLimit),
		Seed:          d.Seed,
		Balance:       balance,
	}, nil
}

// DefaultBalance returns the built-in combat balance used when no override
// is configured.
func DefaultBalance() CombatBalance {
	return CombatBalance{
		BaseHP:       80,
		HPPerStamina: 12,

		BaseWeaponDamage:   10,
		DamagePerStrength:  0.9,
		DamagePerAgility:   0.3,
		DamagePerIntellect: 0.2,

		SpreadMin: 0.85,
		SpreadMax: 1.15,

		MfPerAgility:   6,
		MfPerIntellect: 6,

		Dodge: ChanceCurve{Base: 0.10, Min: 0.02, Max: 0.45, Scale: 0.35, KBase: 120},
		Crit:  ChanceCurve{Base: 0.08, Min: 0.02, Max: 0.40, Scale: 0.35, KBase: 120},

		CritMode:              CritHybrid,
		CritMultiplier:        1.8,
		HybridBlockMultiplier: 0.4,
	}
}
