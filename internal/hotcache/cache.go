// Package hotcache is the optional low-latency mirror of active payment
// intents. It is purely advisory: its absence or disagreement with the
// intent store must never change a forwarding outcome. Unlike the
// teacher's pkg/cache, this is an injected dependency with a lifecycle
// owned by the service root, not a package-level global.
package hotcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lnbroker/internal/intent"
	"lnbroker/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config is the connection configuration for the hot cache's Redis
// client.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewClient builds and pings a redis.Client from Config.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to hot cache redis", zap.Error(err))
		return nil, fmt.Errorf("hot cache redis ping: %w", err)
	}
	logger.Info("hot cache connected to redis", zap.String("host", cfg.Host))
	return client, nil
}

const keyPrefix = "intent:"

func key(paymentHash string) string {
	return keyPrefix + paymentHash
}

// HotCache mirrors active PaymentIntents with a TTL over an injected
// redis.Client. Every method treats a cache failure as non-fatal: it is
// logged and the caller falls back to the IntentStore.
type HotCache struct {
	client *redis.Client
}

// New wraps an already-connected redis.Client.
func New(client *redis.Client) *HotCache {
	return &HotCache{client: client}
}

// Put mirrors an intent snapshot with the given TTL. Failure is logged
// and ignored.
func (c *HotCache) Put(ctx context.Context, in *intent.PaymentIntent, ttl time.Duration) {
	data, err := json.Marshal(in)
	if err != nil {
		logger.Warn("failed to marshal intent for hot cache", zap.String("payment_hash", in.PaymentHash), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key(in.PaymentHash), data, ttl).Err(); err != nil {
		logger.Warn("failed to write hot cache entry", zap.String("payment_hash", in.PaymentHash), zap.Error(err))
	}
}

// Get returns the cached snapshot, or nil on a miss or any cache error
// (the caller is expected to fall back to the IntentStore and
// re-populate on success).
func (c *HotCache) Get(ctx context.Context, paymentHash string) *intent.PaymentIntent {
	data, err := c.client.Get(ctx, key(paymentHash)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("hot cache read failed", zap.String("payment_hash", paymentHash), zap.Error(err))
		}
		return nil
	}

	var in intent.PaymentIntent
	if err := json.Unmarshal(data, &in); err != nil {
		logger.Warn("failed to unmarshal hot cache entry", zap.String("payment_hash", paymentHash), zap.Error(err))
		return nil
	}
	return &in
}

// Delete removes one cached entry. Failure is logged and ignored.
func (c *HotCache) Delete(ctx context.Context, paymentHash string) {
	if err := c.client.Del(ctx, key(paymentHash)).Err(); err != nil {
		logger.Warn("hot cache delete failed", zap.String("payment_hash", paymentHash), zap.Error(err))
	}
}

// DeleteMany removes a batch of cached entries in one round trip, the
// way the teacher pipelines repeated Redis calls in pkg/queue/redis.go's
// message-ack loop.
func (c *HotCache) DeleteMany(ctx context.Context, paymentHashes []string) {
	if len(paymentHashes) == 0 {
		return
	}
	keys := make([]string, len(paymentHashes))
	for i, h := range paymentHashes {
		keys[i] = key(h)
	}
	if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
		logger.Warn("hot cache batch delete failed", zap.Int("count", len(keys)), zap.Error(err))
	}
}
