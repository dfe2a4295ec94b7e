package store

import (
	"fmt"

	"github.com/google/uuid"
)

// Key layout in the shared Redis engine. The deadline index score and the
// deadlineUnixMs field inside the state JSON both carry the deadline in
// unix milliseconds; the JSON value is authoritative.
const (
	statePrefix  = "battle:state:"
	leasePrefix  = "lock:battle:"
	activeKey    = "battle:active"
	deadlinesKey = "battle:deadlines"
)

func stateKey(battleID uuid.UUID) string {
	return statePrefix + battleID.String()
}

func actionKey(battleID uuid.UUID, turnIndex int64, playerID uuid.UUID) string {
	return fmt.Sprintf("battle:action:%s:turn:%d:player:%s", battleID, turnIndex, playerID)
}

func leaseKey(battleID uuid.UUID, turnIndex int64) string {
	return fmt.Sprintf("%s%s:turn:%d", leasePrefix, battleID, turnIndex)
}
