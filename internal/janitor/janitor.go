// Package janitor is C7: the only transition producer for the expired
// status. It runs a single cooperative ticker loop, the same
// select-on-ctx.Done-vs-ticker.C shape as the teacher's
// pkg/queue.StreamQueue.Consume loop.
package janitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lnbroker/internal/intent"
)

// IntentStore is the subset of intent.Store the Janitor depends on.
type IntentStore interface {
	ExpireBefore(ctx context.Context, ts time.Time) ([]string, error)
	AppendEvent(ctx context.Context, paymentHash, kind string, outcome intent.EventOutcome, metadata map[string]string, errMsg string)
}

// Cache is the subset of hotcache.HotCache the Janitor depends on.
type Cache interface {
	DeleteMany(ctx context.Context, paymentHashes []string)
}

// Metrics is the subset of metrics.Metrics the Janitor reports to.
type Metrics interface {
	RecordJanitorExpired(n int)
}

// Clock supplies "now" for each sweep.
type Clock interface {
	Now() time.Time
}

// Config bounds the Janitor's behavior.
type Config struct {
	// Interval is the tick period. Spec default: 5 minutes.
	Interval time.Duration
}

// Janitor sweeps expired intents on a fixed interval.
type Janitor struct {
	store   IntentStore
	cache   Cache
	metrics Metrics
	clock   Clock
	cfg     Config
	logger  *zap.Logger
}

// New builds a Janitor. cache and metrics may be nil.
func New(store IntentStore, cache Cache, metrics Metrics, clock Clock, cfg Config, logger *zap.Logger) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Janitor{store: store, cache: cache, metrics: metrics, clock: clock, cfg: cfg, logger: logger}
}

// Run blocks sweeping every Interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass: ExpireBefore, best-effort cache eviction,
// one status_expired event per hash.
func (j *Janitor) Sweep(ctx context.Context) {
	now := j.clock.Now()

	hashes, err := j.store.ExpireBefore(ctx, now)
	if err != nil {
		j.logger.Error("janitor: expire sweep failed", zap.Error(err))
		return
	}
	if len(hashes) == 0 {
		return
	}

	if j.cache != nil {
		j.cache.DeleteMany(ctx, hashes)
	}

	for _, hash := range hashes {
		j.store.AppendEvent(ctx, hash, intent.EventStatusExpired, intent.OutcomeSuccess, nil, "")
	}

	if j.metrics != nil {
		j.metrics.RecordJanitorExpired(len(hashes))
	}

	j.logger.Info("janitor: expired intents", zap.Int("count", len(hashes)))
}
