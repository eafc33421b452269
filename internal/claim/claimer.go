// Package claim is the thin orchestrator composing the IntentStore and
// the HotCache: Claim/Release/Complete/Fail are the only entry points
// the rest of the broker uses to move an intent through its lifecycle.
package claim

import (
	"context"

	"lnbroker/internal/intent"
	"lnbroker/pkg/logger"

	"go.uber.org/zap"
)

// IntentStore is the subset of intent.Store the Claimer depends on,
// narrowed to an interface so tests can substitute a fake.
type IntentStore interface {
	TryClaim(ctx context.Context, paymentHash string, claimMetadata map[string]string) (intent.ClaimResult, error)
	Release(ctx context.Context, paymentHash string, reason string) (bool, error)
	MarkStatus(ctx context.Context, paymentHash string, newStatus intent.Status, metadataPatch map[string]string) error
	AppendEvent(ctx context.Context, paymentHash, kind string, outcome intent.EventOutcome, metadata map[string]string, errMsg string)
}

// Cache is the subset of hotcache.HotCache the Claimer depends on.
type Cache interface {
	Delete(ctx context.Context, paymentHash string)
}

// Metrics is the subset of metrics.Metrics the Claimer reports to.
type Metrics interface {
	RecordClaim(outcome intent.ClaimOutcome)
}

// Claimer composes the IntentStore and the HotCache behind Claim,
// Release, Complete and Fail.
type Claimer struct {
	store   IntentStore
	cache   Cache
	metrics Metrics
}

// New builds a Claimer. cache and metrics may be nil when hot_cache_enabled
// is false or no metrics registry is configured.
func New(store IntentStore, cache Cache, metrics Metrics) *Claimer {
	return &Claimer{store: store, cache: cache, metrics: metrics}
}

// Claim attempts the atomic pending->processing transition. On success it
// evicts the hot cache entry (processing reads must go through the
// store) and appends claimed_for_processing. On a non-claimed outcome it
// only logs. Every outcome is reported to Metrics.
func (c *Claimer) Claim(ctx context.Context, paymentHash string, claimMetadata map[string]string) (intent.ClaimResult, error) {
	res, err := c.store.TryClaim(ctx, paymentHash, claimMetadata)
	if err != nil {
		return intent.ClaimResult{}, err
	}

	if c.metrics != nil {
		c.metrics.RecordClaim(res.Outcome)
	}

	switch res.Outcome {
	case intent.ClaimOutcomeClaimed:
		c.evict(ctx, paymentHash)
		c.store.AppendEvent(ctx, paymentHash, intent.EventClaimedForProcessing, intent.OutcomeSuccess, nil, "")
	case intent.ClaimOutcomeAlreadyProcessing:
		logger.Info("claim contended: already processing", zap.String("payment_hash", paymentHash))
	case intent.ClaimOutcomeAlreadyTerminal:
		logger.Info("claim contended: already terminal", zap.String("payment_hash", paymentHash), zap.String("status", string(res.TerminalStatus)))
	case intent.ClaimOutcomeNotFound:
		logger.Info("claim missed: intent not found", zap.String("payment_hash", paymentHash))
	}
	return res, nil
}

// Release returns a claimed intent to pending so it becomes re-claimable.
// It never surfaces an error to the caller — this is cleanup-path code
// run from defers and failure branches.
func (c *Claimer) Release(ctx context.Context, paymentHash string, reason string) {
	ok, err := c.store.Release(ctx, paymentHash, reason)
	if err != nil {
		logger.Error("failed to release payment intent", zap.String("payment_hash", paymentHash), zap.Error(err))
		return
	}
	if !ok {
		logger.Warn("release had no effect: intent not in processing", zap.String("payment_hash", paymentHash))
		return
	}
	c.store.AppendEvent(ctx, paymentHash, intent.EventClaimReleased, intent.OutcomeSuccess, nil, reason)
}

// Complete marks a successfully forwarded intent completed.
func (c *Claimer) Complete(ctx context.Context, paymentHash string, summary map[string]string) error {
	if err := c.store.MarkStatus(ctx, paymentHash, intent.StatusCompleted, summary); err != nil {
		return err
	}
	c.evict(ctx, paymentHash)
	c.store.AppendEvent(ctx, paymentHash, intent.EventStatusCompleted, intent.OutcomeSuccess, summary, "")
	return nil
}

// Fail marks an intent failed after its base leg could not be forwarded
// and is not going to be retried automatically.
func (c *Claimer) Fail(ctx context.Context, paymentHash string, reason string) error {
	patch := map[string]string{"last_error": reason}
	if err := c.store.MarkStatus(ctx, paymentHash, intent.StatusFailed, patch); err != nil {
		return err
	}
	c.evict(ctx, paymentHash)
	c.store.AppendEvent(ctx, paymentHash, intent.EventStatusFailed, intent.OutcomeFailure, nil, reason)
	return nil
}

func (c *Claimer) evict(ctx context.Context, paymentHash string) {
	if c.cache == nil {
		return
	}
	c.cache.Delete(ctx, paymentHash)
}
