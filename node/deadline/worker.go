// Package deadline implements the background worker that resolves battles
// whose turn deadline has passed.
package deadline

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/brawlpit/arena/core/types"
	"github.com/brawlpit/arena/node/store"
	"github.com/brawlpit/arena/node/turns"
)

var (
	batchesClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_deadline_batches_total",
		Help: "Claim batches executed by the deadline worker",
	})

	battlesClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_deadline_claims_total",
		Help: "Battles claimed for deadline-driven resolution",
	})

	claimErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_deadline_errors_total",
		Help: "Claim or resolve errors in the deadline worker",
	})
)

// Config holds deadline worker configuration.
type Config struct {
	BatchSize    int           // Battles claimed per tick
	LeaseTTL     time.Duration // Resolver lease window
	IdleDelayMin time.Duration // Backoff floor when no work was found
	IdleDelayMax time.Duration // Backoff cap when no work was found
	BacklogDelay time.Duration // Delay after a non-empty batch
	ErrorDelay   time.Duration // Delay after a claim error
}

// DefaultConfig returns default worker config.
func DefaultConfig() Config {
	return Config{
		BatchSize:    50,
		LeaseTTL:     4 * time.Second,
		IdleDelayMin: 200 * time.Millisecond,
		IdleDelayMax: time.Second,
		BacklogDelay: 30 * time.Millisecond,
		ErrorDelay:   200 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = d.LeaseTTL
	}
	if c.IdleDelayMin <= 0 {
		c.IdleDelayMin = d.IdleDelayMin
	}
	if c.IdleDelayMax < c.IdleDelayMin {
		c.IdleDelayMax = d.IdleDelayMax
	}
	if c.BacklogDelay <= 0 {
		c.BacklogDelay = d.BacklogDelay
	}
	if c.ErrorDelay <= 0 {
		c.ErrorDelay = d.ErrorDelay
	}
	return c
}

// Worker scans the deadline index and drives expired turns through the turn
// service. One long-lived instance runs per process; multiple processes
// coordinate through the store's claim leases.
type Worker struct {
	config Config
	store  store.Store
	turns  *turns.Service
	clock  types.Clock
	log    *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a deadline worker.
func New(config Config, st store.Store, turnService *turns.Service, clock types.Clock, log *zap.Logger) *Worker {
	return &Worker{
		config: config.withDefaults(),
		store:  st,
		turns:  turnService,
		clock:  clock,
		log:    log.Sugar(),
	}
}

// Start starts the scan loop.
func (w *Worker) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.scanLoop()
	return nil
}

// Stop cancels the loop and waits for the in-flight batch to drain.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// scanLoop claims due battles and adapts its pace: short drain delay while
// there is backlog, exponential backoff up to a cap while idle.
func (w *Worker) scanLoop() {
	defer w.wg.Done()

	delay := w.config.IdleDelayMin
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-time.After(delay):
		}

		n, err := w.Tick(w.ctx)
		switch {
		case err != nil:
			if w.ctx.Err() != nil {
				return
			}
			claimErrors.Inc()
			w.log.Errorw("deadline scan failed", "error", err)
			delay = w.config.ErrorDelay
		case n > 0:
			delay = w.config.BacklogDelay
		default:
			delay *= 2
			if delay > w.config.IdleDelayMax {
				delay = w.config.IdleDelayMax
			}
			if delay < w.config.IdleDelayMin {
				delay = w.config.IdleDelayMin
			}
		}
	}
}

// Tick claims one batch of due battles and resolves them. It returns the
// number of claimed battles. Resolve failures are logged and left for lease
// expiry to redeliver.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	claimed, err := w.store.ClaimDueBattles(ctx, w.clock.Now(), w.config.BatchSize, w.config.LeaseTTL)
	if err != nil {
		return 0, err
	}
	batchesClaimed.Inc()
	if len(claimed) == 0 {
		return 0, nil
	}
	battlesClaimed.Add(float64(len(claimed)))

	for _, c := range claimed {
		if ctx.Err() != nil {
			return len(claimed), ctx.Err()
		}
		committed, err := w.turns.ResolveTurn(ctx, c.BattleID)
		if err != nil {
			claimErrors.Inc()
			w.log.Errorw("deadline resolution failed",
				"battle", c.BattleID, "turn", c.TurnIndex, "error", err)
			continue
		}
		if committed {
			w.log.Debugw("deadline resolution committed",
				"battle", c.BattleID, "turn", c.TurnIndex)
		}
	}
	return len(claimed), nil
}
