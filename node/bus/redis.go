package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// payloadField is the single stream entry field holding the event JSON.
const payloadField = "payload"

// readBlock bounds each XREAD so shutdown is observed promptly.
const readBlock = 2 * time.Second

// RedisPublisher publishes integration events with XADD.
type RedisPublisher struct {
	rdb    redis.UniversalClient
	stream string
}

// NewRedisPublisher creates a publisher for the battle.ended stream.
func NewRedisPublisher(rdb redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, stream: StreamBattleEnded}
}

// PublishBattleEnded implements Publisher.
func (p *RedisPublisher) PublishBattleEnded(ctx context.Context, ev BattleEnded) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal battle ended event: %w", err)
	}
	if err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{payloadField: raw},
	}).Err(); err != nil {
		return fmt.Errorf("publish battle ended: %w", err)
	}
	return nil
}

// Handler consumes one inbound BattleCreated event.
type Handler func(ctx context.Context, ev BattleCreated) error

// Consumer tails the battle.created stream and feeds the lifecycle service.
// Handler errors are logged and the entry is skipped; the handler itself is
// idempotent, so the producer side may redeliver freely.
type Consumer struct {
	rdb     redis.UniversalClient
	stream  string
	handler Handler
	log     *zap.SugaredLogger

	lastID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer starting at the current stream tail.
func NewConsumer(rdb redis.UniversalClient, handler Handler, log *zap.Logger) *Consumer {
	return &Consumer{
		rdb:     rdb,
		stream:  StreamBattleCreated,
		handler: handler,
		log:     log.Sugar(),
		lastID:  "$",
	}
}

// Start begins tailing the stream.
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.readLoop()
	return nil
}

// Stop halts the consumer and waits for the read loop to exit.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Consumer) readLoop() {
	defer c.wg.Done()

	for {
		if c.ctx.Err() != nil {
			return
		}

		streams, err := c.rdb.XRead(c.ctx, &redis.XReadArgs{
			Streams: []string{c.stream, c.lastID},
			Block:   readBlock,
			Count:   64,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Errorw("bus read failed", "stream", c.stream, "error", err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.lastID = msg.ID
				c.dispatch(msg)
			}
		}
	}
}

func (c *Consumer) dispatch(msg redis.XMessage) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		c.log.Warnw("bus entry without payload", "stream", c.stream, "id", msg.ID)
		return
	}
	var ev BattleCreated
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		c.log.Warnw("bus entry with malformed payload",
			"stream", c.stream, "id", msg.ID, "error", err)
		return
	}
	if err := c.handler(c.ctx, ev); err != nil {
		c.log.Errorw("battle created handler failed",
			"battle", ev.BattleID, "id", msg.ID, "error", err)
	}
}
