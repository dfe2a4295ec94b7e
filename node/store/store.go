// Package store owns battle persistence and all cross-component atomicity.
//
// Every transition is executed as a single Lua script against the shared
// Redis engine, so per-battle writes are serialized by the engine itself and
// no external locks are needed. The deadline index, action entries, active
// set and resolver leases all live in the same engine.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/types"
)

// Default knobs.
const (
	DefaultActionTTL     = time.Hour
	DefaultPostponeDelay = 200 * time.Millisecond
)

// EndResult is the tri-valued outcome of EndBattleAndMarkResolved.
type EndResult string

const (
	// EndedNow: this caller committed the terminal transition.
	EndedNow EndResult = "ended_now"
	// AlreadyEnded: some other caller ended the battle first.
	AlreadyEnded EndResult = "already_ended"
	// NotCommitted: the CAS precondition did not hold.
	NotCommitted EndResult = "not_committed"
)

// StoreActionResult reports a first-write-wins action write.
type StoreActionResult struct {
	Stored        bool
	BothSubmitted bool
}

// ClaimedBattle is one (battle, turn) pair handed to a resolver.
type ClaimedBattle struct {
	BattleID  uuid.UUID
	TurnIndex int64
}

// Store is the battle state port consumed by the lifecycle service, the turn
// service and the deadline worker.
type Store interface {
	TryInitialize(ctx context.Context, st *battle.State) (bool, error)
	GetState(ctx context.Context, battleID uuid.UUID) (*battle.State, error)
	TryOpenTurn(ctx context.Context, battleID uuid.UUID, turnIndex int64, deadline time.Time) (bool, error)
	TryMarkTurnResolving(ctx context.Context, battleID uuid.UUID, turnIndex int64) (bool, error)
	MarkTurnResolvedAndOpenNext(ctx context.Context, battleID uuid.UUID, currentIdx, nextIdx int64, nextDeadline time.Time, streak int, hpA, hpB int64) (bool, error)
	EndBattleAndMarkResolved(ctx context.Context, battleID uuid.UUID, turnIndex int64, streak int, hpA, hpB int64) (EndResult, error)
	StoreAction(ctx context.Context, battleID uuid.UUID, turnIndex int64, playerID uuid.UUID, cmd *battle.ActionCommand) (bool, error)
	StoreActionAndCheckBothSubmitted(ctx context.Context, battleID uuid.UUID, turnIndex int64, playerID, opponentID uuid.UUID, cmd *battle.ActionCommand) (StoreActionResult, error)
	GetActions(ctx context.Context, battleID uuid.UUID, turnIndex int64, playerA, playerB uuid.UUID) (*battle.ActionCommand, *battle.ActionCommand, error)
	ClaimDueBattles(ctx context.Context, now time.Time, limit int, leaseTTL time.Duration) ([]ClaimedBattle, error)
}

// Options tune the redis store.
type Options struct {
	// ActionTTL bounds the lifetime of stored action entries.
	ActionTTL time.Duration
	// PostponeDelay is the small re-queue delay the claim script applies to
	// entries that are due but not yet claimable.
	PostponeDelay time.Duration
}

// RedisStore implements Store on a Redis client.
type RedisStore struct {
	rdb           redis.UniversalClient
	actionTTL     time.Duration
	postponeDelay time.Duration
}

// NewRedisStore creates a RedisStore. Zero option fields fall back to the
// defaults.
func NewRedisStore(rdb redis.UniversalClient, opts Options) *RedisStore {
	if opts.ActionTTL <= 0 {
		opts.ActionTTL = DefaultActionTTL
	}
	if opts.PostponeDelay <= 0 {
		opts.PostponeDelay = DefaultPostponeDelay
	}
	return &RedisStore{
		rdb:           rdb,
		actionTTL:     opts.ActionTTL,
		postponeDelay: opts.PostponeDelay,
	}
}

// TryInitialize creates the state record only if absent and registers the
// battle in the active set. Idempotent: redelivery returns false.
func (s *RedisStore) TryInitialize(ctx context.Context, st *battle.State) (bool, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return false, fmt.Errorf("marshal battle state: %w", err)
	}
	n, err := initializeScript.Run(ctx, s.rdb,
		[]string{stateKey(st.BattleID), activeKey},
		raw, st.BattleID.String()).Int()
	if err != nil {
		return false, fmt.Errorf("initialize battle %s: %w", st.BattleID, err)
	}
	return n == 1, nil
}

// GetState returns the current snapshot. A missing record yields
// types.ErrBattleNotFound; a malformed record is fatal for the battle and
// yields types.ErrCorruptedState.
func (s *RedisStore) GetState(ctx context.Context, battleID uuid.UUID) (*battle.State, error) {
	raw, err := s.rdb.Get(ctx, stateKey(battleID)).Bytes()
	if err == redis.Nil {
		return nil, types.ErrBattleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get battle state %s: %w", battleID, err)
	}
	var st battle.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: battle %s: %v", types.ErrCorruptedState, battleID, err)
	}
	return &st, nil
}

// TryOpenTurn opens turnIndex with the given deadline. Succeeds only from
// arena_open or resolving with lastResolvedTurnIndex == turnIndex-1; the
// deadline index is updated in the same script.
func (s *RedisStore) TryOpenTurn(ctx context.Context, battleID uuid.UUID, turnIndex int64, deadline time.Time) (bool, error) {
	n, err := openTurnScript.Run(ctx, s.rdb,
		[]string{stateKey(battleID), deadlinesKey},
		turnIndex, deadline.UnixMilli(), battleID.String()).Int()
	if err != nil {
		return false, fmt.Errorf("open turn %d for battle %s: %w", turnIndex, battleID, err)
	}
	return n == 1, nil
}

// TryMarkTurnResolving CASes turn_open -> resolving for the given turn.
func (s *RedisStore) TryMarkTurnResolving(ctx context.Context, battleID uuid.UUID, turnIndex int64) (bool, error) {
	n, err := markResolvingScript.Run(ctx, s.rdb,
		[]string{stateKey(battleID)}, turnIndex).Int()
	if err != nil {
		return false, fmt.Errorf("mark turn %d resolving for battle %s: %w", turnIndex, battleID, err)
	}
	return n == 1, nil
}

// MarkTurnResolvedAndOpenNext commits the resolution of currentIdx and opens
// nextIdx atomically.
func (s *RedisStore) MarkTurnResolvedAndOpenNext(ctx context.Context, battleID uuid.UUID, currentIdx, nextIdx int64, nextDeadline time.Time, streak int, hpA, hpB int64) (bool, error) {
	n, err := resolveAndOpenNextScript.Run(ctx, s.rdb,
		[]string{stateKey(battleID), deadlinesKey},
		currentIdx, nextIdx, nextDeadline.UnixMilli(), streak, hpA, hpB, battleID.String()).Int()
	if err != nil {
		return false, fmt.Errorf("resolve turn %d for battle %s: %w", currentIdx, battleID, err)
	}
	return n == 1, nil
}

// EndBattleAndMarkResolved commits the terminal transition. The tri-valued
// result lets callers de-duplicate end notifications: only EndedNow emits.
func (s *RedisStore) EndBattleAndMarkResolved(ctx context.Context, battleID uuid.UUID, turnIndex int64, streak int, hpA, hpB int64) (EndResult, error) {
	res, err := endBattleScript.Run(ctx, s.rdb,
		[]string{stateKey(battleID), deadlinesKey, activeKey},
		turnIndex, streak, hpA, hpB, battleID.String()).Text()
	if err != nil {
		return NotCommitted, fmt.Errorf("end battle %s: %w", battleID, err)
	}
	switch EndResult(res) {
	case EndedNow, AlreadyEnded, NotCommitted:
		return EndResult(res), nil
	default:
		return NotCommitted, fmt.Errorf("end battle %s: unexpected script result %q", battleID, res)
	}
}

// StoreAction writes the canonical action with first-write-wins semantics.
// Returns true when this write created the entry.
func (s *RedisStore) StoreAction(ctx context.Context, battleID uuid.UUID, turnIndex int64, playerID uuid.UUID, cmd *battle.ActionCommand) (bool, error) {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return false, fmt.Errorf("marshal action command: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, actionKey(battleID, turnIndex, playerID), raw, s.actionTTL).Result()
	if err != nil {
		return false, fmt.Errorf("store action for battle %s turn %d: %w", battleID, turnIndex, err)
	}
	return ok, nil
}

// StoreActionAndCheckBothSubmitted is StoreAction plus an atomic observation
// of whether both participants have an entry for this turn.
func (s *RedisStore) StoreActionAndCheckBothSubmitted(ctx context.Context, battleID uuid.UUID, turnIndex int64, playerID, opponentID uuid.UUID, cmd *battle.ActionCommand) (StoreActionResult, error) {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return StoreActionResult{}, fmt.Errorf("marshal action command: %w", err)
	}
	vals, err := storeActionScript.Run(ctx, s.rdb,
		[]string{
			actionKey(battleID, turnIndex, playerID),
			actionKey(battleID, turnIndex, opponentID),
		},
		raw, s.actionTTL.Milliseconds()).Int64Slice()
	if err != nil {
		return StoreActionResult{}, fmt.Errorf("store action for battle %s turn %d: %w", battleID, turnIndex, err)
	}
	if len(vals) != 2 {
		return StoreActionResult{}, fmt.Errorf("store action for battle %s: unexpected script result %v", battleID, vals)
	}
	return StoreActionResult{Stored: vals[0] == 1, BothSubmitted: vals[1] == 1}, nil
}

// GetActions returns both stored actions for the turn; either may be nil when
// absent or unreadable (legacy and corrupt entries are mapped to NoAction by
// the intake pipeline on read).
func (s *RedisStore) GetActions(ctx context.Context, battleID uuid.UUID, turnIndex int64, playerA, playerB uuid.UUID) (*battle.ActionCommand, *battle.ActionCommand, error) {
	vals, err := s.rdb.MGet(ctx,
		actionKey(battleID, turnIndex, playerA),
		actionKey(battleID, turnIndex, playerB)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("get actions for battle %s turn %d: %w", battleID, turnIndex, err)
	}
	if len(vals) != 2 {
		return nil, nil, fmt.Errorf("get actions for battle %s: unexpected reply length %d", battleID, len(vals))
	}
	return decodeAction(vals[0]), decodeAction(vals[1]), nil
}

func decodeAction(v interface{}) *battle.ActionCommand {
	raw, ok := v.(string)
	if !ok || raw == "" {
		return nil
	}
	var cmd battle.ActionCommand
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return nil
	}
	return &cmd
}

// ClaimDueBattles pops up to limit due entries from the deadline index and
// returns the pairs this worker may resolve. See claimDueScript for the
// per-entry rules; the lease + postpone pattern guarantees at-most-one
// concurrent resolver per turn and automatic redelivery after a crash.
func (s *RedisStore) ClaimDueBattles(ctx context.Context, now time.Time, limit int, leaseTTL time.Duration) ([]ClaimedBattle, error) {
	vals, err := claimDueScript.Run(ctx, s.rdb,
		[]string{deadlinesKey},
		now.UnixMilli(), limit, leaseTTL.Milliseconds(), s.postponeDelay.Milliseconds(),
		statePrefix, leasePrefix).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("claim due battles: %w", err)
	}
	if len(vals)%2 != 0 {
		return nil, fmt.Errorf("claim due battles: unexpected script result %v", vals)
	}
	claimed := make([]ClaimedBattle, 0, len(vals)/2)
	for i := 0; i < len(vals); i += 2 {
		id, err := uuid.Parse(vals[i])
		if err != nil {
			return nil, fmt.Errorf("claim due battles: bad battle id %q: %w", vals[i], err)
		}
		turn, err := strconv.ParseInt(vals[i+1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("claim due battles: bad turn index %q: %w", vals[i+1], err)
		}
		claimed = append(claimed, ClaimedBattle{BattleID: id, TurnIndex: turn})
	}
	return claimed, nil
}
