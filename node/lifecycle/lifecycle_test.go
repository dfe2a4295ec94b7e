package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brawlpit/arena/core/battle"
	"github.com/brawlpit/arena/core/rules"
	"github.com/brawlpit/arena/core/types"
	"github.com/brawlpit/arena/node/bus"
	"github.com/brawlpit/arena/node/notify"
	"github.com/brawlpit/arena/node/profile"
	"github.com/brawlpit/arena/node/store"
)

type countingNotifier struct {
	mu     sync.Mutex
	ready  int
	opened []notify.TurnOpenedMsg
}

func (c *countingNotifier) BattleReady(context.Context, notify.BattleReadyMsg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready++
	return nil
}

func (c *countingNotifier) TurnOpened(_ context.Context, m notify.TurnOpenedMsg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = append(c.opened, m)
	return nil
}

func (c *countingNotifier) TurnResolved(context.Context, notify.TurnResolvedMsg) error { return nil }
func (c *countingNotifier) PlayerDamaged(context.Context, notify.PlayerDamagedMsg) error {
	return nil
}
func (c *countingNotifier) BattleEnded(context.Context, notify.BattleEndedMsg) error { return nil }

type fixture struct {
	store    store.Store
	service  *Service
	notifier *countingNotifier
	clock    *types.ManualClock
	playerA  uuid.UUID
	playerB  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	playerA, playerB := uuid.New(), uuid.New()
	profiles := profile.StaticSource{Profiles: map[uuid.UUID]battle.PlayerStats{
		playerA: {Strength: 10, Stamina: 8, Agility: 5, Intellect: 3},
		playerB: {Strength: 7, Stamina: 12, Agility: 6, Intellect: 6},
	}}

	st := store.NewRedisStore(rdb, store.Options{})
	clock := types.NewManualClock(time.Unix(1700000000, 0))
	notifier := &countingNotifier{}
	balance := rules.StaticBalanceProvider{Value: rules.DefaultBalance()}
	service := New(st, profiles, balance, notifier, clock, zap.NewNop())

	return &fixture{
		store:    st,
		service:  service,
		notifier: notifier,
		clock:    clock,
		playerA:  playerA,
		playerB:  playerB,
	}
}

func createdEvent(f *fixture) bus.BattleCreated {
	return bus.BattleCreated{
		BattleID:  uuid.New(),
		MatchID:   uuid.New(),
		PlayerAID: f.playerA,
		PlayerBID: f.playerB,
		Ruleset:   &rules.Descriptor{Version: 1, TurnSeconds: 10, Seed: 42},
		CreatedAt: f.clock.Now().UnixMilli(),
		Version:   1,
	}
}

func TestHandleBattleCreated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := createdEvent(f)

	require.NoError(t, f.service.HandleBattleCreated(ctx, ev))

	st, err := f.store.GetState(ctx, ev.BattleID)
	require.NoError(t, err)
	require.Equal(t, battle.PhaseTurnOpen, st.Phase)
	require.Equal(t, int64(1), st.TurnIndex)
	require.Equal(t, f.playerA, st.PlayerA.ID)
	require.Equal(t, f.playerB, st.PlayerB.ID)

	// HP is frozen from the profile stats at initialization.
	require.Equal(t, st.PlayerA.MaxHP, st.PlayerA.HP)
	require.Equal(t, int64(80+8*12), st.PlayerA.MaxHP)
	require.Equal(t, int64(80+12*12), st.PlayerB.MaxHP)

	// Omitted NoActionLimit defaulted during normalization.
	require.Equal(t, rules.DefaultNoActionLimit, st.Ruleset.NoActionLimit)

	wantDeadline := f.clock.Now().Add(10 * time.Second).UnixMilli()
	require.Equal(t, wantDeadline, st.DeadlineUnixMs)

	require.Equal(t, 1, f.notifier.ready)
	require.Len(t, f.notifier.opened, 1)
	require.Equal(t, int64(1), f.notifier.opened[0].TurnIndex)
	require.Equal(t, wantDeadline, f.notifier.opened[0].DeadlineUnixMs)
}

func TestHandleBattleCreatedRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := createdEvent(f)

	require.NoError(t, f.service.HandleBattleCreated(ctx, ev))
	before, err := f.store.GetState(ctx, ev.BattleID)
	require.NoError(t, err)

	// The bus redelivers: nothing changes and nothing re-emits.
	require.NoError(t, f.service.HandleBattleCreated(ctx, ev))

	after, err := f.store.GetState(ctx, ev.BattleID)
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version)
	require.Equal(t, before.DeadlineUnixMs, after.DeadlineUnixMs)
	require.Equal(t, 1, f.notifier.ready)
	require.Len(t, f.notifier.opened, 1)
}

func TestHandleBattleCreatedInvalidRulesetDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := createdEvent(f)
	ev.Ruleset = &rules.Descriptor{Version: 0, TurnSeconds: 10}

	// Handled without error so the bus does not redeliver forever.
	require.NoError(t, f.service.HandleBattleCreated(ctx, ev))

	_, err := f.store.GetState(ctx, ev.BattleID)
	require.ErrorIs(t, err, types.ErrBattleNotFound)
	require.Equal(t, 0, f.notifier.ready)
}

func TestHandleBattleCreatedUnknownPlayerDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := createdEvent(f)
	ev.PlayerBID = uuid.New()

	require.NoError(t, f.service.HandleBattleCreated(ctx, ev))

	_, err := f.store.GetState(ctx, ev.BattleID)
	require.ErrorIs(t, err, types.ErrBattleNotFound)
	require.Equal(t, 0, f.notifier.ready)
}
