// Package metrics is C9's metrics half: Prometheus counters and
// histograms registered on a private registry, plus a periodic poll of
// IntentStore.Stats so gauges stay current without sitting on any
// request path.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"lnbroker/internal/intent"
)

// StatsSource is the slice of intent.Store the metrics poller needs.
// Satisfied by *intent.Store.
type StatsSource interface {
	Stats(ctx context.Context, window time.Duration) (intent.StatsSnapshot, error)
}

// Metrics holds every counter/gauge/histogram the broker exports, each
// registered on its own private Registry so tests never collide with
// the default global one.
type Metrics struct {
	Registry *prometheus.Registry

	IntentsCreated  prometheus.Counter
	ClaimsTotal     *prometheus.CounterVec // label: outcome
	PayoutLegsTotal *prometheus.CounterVec // labels: kind, outcome
	JanitorExpired  prometheus.Counter
	ForwardDuration prometheus.Histogram

	IntentsByStatus *prometheus.GaugeVec // label: status
	TotalAmountSat  prometheus.Gauge
	TipAmountSat    prometheus.Gauge
}

// New builds and registers every metric.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		IntentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lnbroker",
			Name:      "intents_created_total",
			Help:      "Total payment intents inserted by IngressInvoiceAPI.",
		}),
		ClaimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lnbroker",
			Name:      "claims_total",
			Help:      "Total Claimer.Claim attempts by outcome.",
		}, []string{"outcome"}),
		PayoutLegsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lnbroker",
			Name:      "payout_legs_total",
			Help:      "Total payout legs executed by kind and outcome.",
		}, []string{"kind", "outcome"}),
		JanitorExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lnbroker",
			Name:      "janitor_expired_total",
			Help:      "Total intents transitioned to expired by the Janitor.",
		}),
		ForwardDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lnbroker",
			Name:      "forward_duration_seconds",
			Help:      "Wall-clock duration of a full plan execution (claim to completion/release).",
			Buckets:   prometheus.DefBuckets,
		}),
		IntentsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lnbroker",
			Name:      "intents_by_status",
			Help:      "Count of intents created within the trailing stats window, by status.",
		}, []string{"status"}),
		TotalAmountSat: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lnbroker",
			Name:      "total_amount_sat",
			Help:      "Sum of total_amount_sat over the trailing stats window.",
		}),
		TipAmountSat: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lnbroker",
			Name:      "tip_amount_sat",
			Help:      "Sum of tip_amount_sat over the trailing stats window.",
		}),
	}

	registry.MustRegister(
		m.IntentsCreated,
		m.ClaimsTotal,
		m.PayoutLegsTotal,
		m.JanitorExpired,
		m.ForwardDuration,
		m.IntentsByStatus,
		m.TotalAmountSat,
		m.TipAmountSat,
	)
	return m
}

// RecordClaim increments ClaimsTotal for a Claimer.Claim outcome.
func (m *Metrics) RecordClaim(outcome intent.ClaimOutcome) {
	m.ClaimsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordPayoutLeg increments PayoutLegsTotal for one executed leg.
func (m *Metrics) RecordPayoutLeg(kind string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.PayoutLegsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordJanitorExpired adds n newly-expired intents to the counter.
func (m *Metrics) RecordJanitorExpired(n int) {
	if n <= 0 {
		return
	}
	m.JanitorExpired.Add(float64(n))
}

// ObserveForwardDuration records one plan execution's wall-clock time.
func (m *Metrics) ObserveForwardDuration(d time.Duration) {
	m.ForwardDuration.Observe(d.Seconds())
}

// PollStats refreshes the status/amount gauges from source every
// interval until ctx is cancelled, the same select-on-ticker shape as
// the teacher's StreamQueue.Consume loop.
func (m *Metrics) PollStats(ctx context.Context, source StatsSource, window, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := source.Stats(ctx, window)
			if err != nil {
				logger.Warn("metrics: failed to refresh intent stats", zap.Error(err))
				continue
			}
			for _, status := range []intent.Status{
				intent.StatusPending, intent.StatusProcessing,
				intent.StatusCompleted, intent.StatusFailed, intent.StatusExpired,
			} {
				m.IntentsByStatus.WithLabelValues(string(status)).Set(float64(snap.ByStatus[status]))
			}
			m.TotalAmountSat.Set(float64(snap.TotalAmountSat))
			m.TipAmountSat.Set(float64(snap.TipAmountSat))
		}
	}
}
