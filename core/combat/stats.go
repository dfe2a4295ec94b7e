// Package combat implements the pure combat model: derived stats, chance
// curves, damage rolls, and the deterministic turn engine. Nothing in this
// package performs I/O or reads a clock.
package combat

import (
	"math"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/rules"
)

// DerivedStats are the per-fighter combat numbers computed from base stats
// and the battle's frozen combat balance.
type DerivedStats struct {
	HPMax int64

	BaseDamage float64
	DamageMin  int64
	DamageMax  int64

	MfDodge     float64
	MfAntiDodge float64
	MfCrit      float64
	MfAntiCrit  float64
}

// Derive computes DerivedStats for one fighter. HPMax is frozen into stored
// state at initialization; the damage and mf numbers are recomputed for each
// turn's resolution.
func Derive(stats battle.PlayerStats, bal rules.CombatBalance) DerivedStats {
	baseDamage := bal.BaseWeaponDamage +
		float64(stats.Strength)*bal.DamagePerStrength +
		float64(stats.Agility)*bal.DamagePerAgility +
		float64(stats.Intellect)*bal.DamagePerIntellect

	mfDodge := float64(stats.Agility) * bal.MfPerAgility
	mfCrit := float64(stats.Intellect) * bal.MfPerIntellect

	return DerivedStats{
		HPMax:       int64(math.Round(bal.BaseHP + float64(stats.Stamina)*bal.HPPerStamina)),
		BaseDamage:  baseDamage,
		DamageMin:   int64(math.Floor(baseDamage * bal.SpreadMin)),
		DamageMax:   int64(math.Ceil(baseDamage * bal.SpreadMax)),
		MfDodge:     mfDodge,
		MfAntiDodge: mfDodge,
		MfCrit:      mfCrit,
		MfAntiCrit:  mfCrit,
	}
}

// Chance evaluates a chance curve for the given mf difference:
//
//	raw    = base + scale * diff / (|diff| + kBase)
//	chance = clamp(raw, min, max)
func Chance(curve rules.ChanceCurve, diff float64) float64 {
	raw := curve.Base
	if denom := math.Abs(diff) + curve.KBase; denom != 0 {
		raw += curve.Scale * diff / denom
	}
	return math.Min(math.Max(raw, curve.Min), curve.Max)
}

// DodgeChance is the defender's chance to dodge the attacker.
func DodgeChance(attacker, defender DerivedStats, bal rules.CombatBalance) float64 {
	return Chance(bal.Dodge, defender.MfDodge-attacker.MfAntiDodge)
}

// CritChance is the attacker's chance to land a critical hit on the defender.
func CritChance(attacker, defender DerivedStats, bal rules.CombatBalance) float64 {
	return Chance(bal.Crit, attacker.MfCrit-defender.MfAntiCrit)
}
