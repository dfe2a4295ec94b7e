package combat

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"

	"github.com/google/uuid"
)

// Attack directions. Each direction gets its own PRNG stream so draws on one
// never perturb the other.
const (
	dirAToB = "a->b"
	dirBToA = "b->a"
)

// roller is the draw interface the attack pipeline consumes.
type roller interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
}

// turnStream materializes the deterministic PRNG for one attack direction of
// one turn. The seed is derived from (battleId, matchId, ruleset seed,
// turnIndex, direction), so identical inputs reproduce identical draws across
// processes and retries.
func turnStream(battleID, matchID uuid.UUID, seed int64, turnIndex int64, direction string) *rand.Rand {
	h := sha256.New()
	h.Write(battleID[:])
	h.Write(matchID[:])

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(seed))
	binary.BigEndian.PutUint64(buf[8:], uint64(turnIndex))
	h.Write(buf[:])
	h.Write([]byte(direction))

	sum := h.Sum(nil)
	return rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(sum[:8]))))
}

// uniformDecimal returns a uniform real number in [min, max]. No rounding
// happens here; the damage pipeline rounds once, at the very end.
func uniformDecimal(rng roller, min, max int64) float64 {
	if min >= max {
		return float64(min)
	}
	return float64(min) + rng.Float64()*float64(max-min)
}
