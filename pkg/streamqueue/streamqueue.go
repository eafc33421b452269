// Package streamqueue wraps Redis Streams for at-least-once message
// delivery with consumer groups, adapted from the teacher's
// pkg/queue.StreamQueue: same XAdd/XReadGroup/XAutoClaim/XAck shape,
// generalized so callers tune retention, blocking, and reclaim timing
// instead of having them baked in.
package streamqueue

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config tunes one StreamQueue's retention and polling behavior.
type Config struct {
	// MaxLen approximately caps stream length (XADD MAXLEN ~).
	MaxLen int64
	// BlockFor is how long XReadGroup blocks waiting for new entries.
	BlockFor time.Duration
	// ReadCount is the max entries read per XReadGroup call.
	ReadCount int64
	// ReclaimMinIdle is how long a delivered-but-unacked entry sits
	// before XAutoClaim hands it to another consumer.
	ReclaimMinIdle time.Duration
	// ReclaimEvery reclaims pending entries once every N consume loops.
	ReclaimEvery int
}

func (c Config) withDefaults() Config {
	if c.MaxLen <= 0 {
		c.MaxLen = 10000
	}
	if c.BlockFor <= 0 {
		c.BlockFor = 5 * time.Second
	}
	if c.ReadCount <= 0 {
		c.ReadCount = 10
	}
	if c.ReclaimMinIdle <= 0 {
		c.ReclaimMinIdle = 5 * time.Minute
	}
	if c.ReclaimEvery <= 0 {
		c.ReclaimEvery = 10
	}
	return c
}

// Handler processes one message; returning nil ACKs it, a non-nil
// error leaves it pending for a future reclaim or redelivery.
type Handler func(ctx context.Context, messageID string, data []byte) error

// StreamQueue wraps a Redis client for stream-based message delivery.
type StreamQueue struct {
	client *redis.Client
	cfg    Config
	logger *zap.Logger
}

// New builds a StreamQueue over an already-connected client.
func New(client *redis.Client, cfg Config, logger *zap.Logger) *StreamQueue {
	return &StreamQueue{client: client, cfg: cfg.withDefaults(), logger: logger}
}

// DeclareStream ensures a consumer group exists for stream, tolerating
// BUSYGROUP (group already exists).
func (q *StreamQueue) DeclareStream(ctx context.Context, stream, group string) error {
	err := q.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		q.logger.Error("failed to create consumer group", zap.String("stream", stream), zap.String("group", group), zap.Error(err))
		return err
	}
	return nil
}

// Publish adds data to stream, returning the generated message ID.
func (q *StreamQueue) Publish(ctx context.Context, stream string, data []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: q.cfg.MaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": data},
	}
	id, err := q.client.XAdd(ctx, args).Result()
	if err != nil {
		q.logger.Error("failed to publish message", zap.String("stream", stream), zap.Error(err))
		return "", err
	}
	return id, nil
}

// Consume blocks reading stream as consumer in group, calling handler
// for each delivered message, until ctx is cancelled.
func (q *StreamQueue) Consume(ctx context.Context, stream, group, consumer string, handler Handler) {
	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    q.cfg.ReadCount,
		Block:    q.cfg.BlockFor,
	}

	var loops int
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		loops++
		if loops%q.cfg.ReclaimEvery == 0 {
			q.reclaimPending(ctx, stream, group, consumer, handler)
		}

		res, err := q.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			q.logger.Error("failed to read from stream", zap.String("stream", stream), zap.Error(err))
			continue
		}

		for _, xstream := range res {
			for _, msg := range xstream.Messages {
				q.handleMessage(ctx, stream, group, msg, handler)
			}
		}
	}
}

func (q *StreamQueue) reclaimPending(ctx context.Context, stream, group, consumer string, handler Handler) {
	args := &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		MinIdle:  q.cfg.ReclaimMinIdle,
		Start:    "0-0",
		Consumer: consumer,
		Count:    100,
	}

	res, _, err := q.client.XAutoClaim(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return
		}
		q.logger.Error("failed to reclaim pending messages", zap.String("stream", stream), zap.Error(err))
		return
	}
	for _, msg := range res {
		q.handleMessage(ctx, stream, group, msg, handler)
	}
}

func (q *StreamQueue) handleMessage(ctx context.Context, stream, group string, msg redis.XMessage, handler Handler) {
	dataValue, ok := msg.Values["data"]
	if !ok {
		q.logger.Warn("message missing data field", zap.String("message_id", msg.ID))
		q.client.XAck(ctx, stream, group, msg.ID)
		return
	}
	dataStr, ok := dataValue.(string)
	if !ok {
		q.logger.Warn("message data field is not a string", zap.String("message_id", msg.ID))
		q.client.XAck(ctx, stream, group, msg.ID)
		return
	}

	if err := handler(ctx, msg.ID, []byte(dataStr)); err != nil {
		q.logger.Error("handler failed", zap.String("message_id", msg.ID), zap.Error(err))
		return
	}
	q.client.XAck(ctx, stream, group, msg.ID)
}
