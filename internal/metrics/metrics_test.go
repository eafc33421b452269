package metrics

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"lnbroker/internal/intent"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatsSource struct {
	snap intent.StatsSnapshot
	err  error
}

func (f *fakeStatsSource) Stats(ctx context.Context, window time.Duration) (intent.StatsSnapshot, error) {
	return f.snap, f.err
}

func TestRecordClaimAndPayoutLeg(t *testing.T) {
	m := New()
	m.RecordClaim(intent.ClaimOutcomeClaimed)
	m.RecordClaim(intent.ClaimOutcomeAlreadyProcessing)
	m.RecordPayoutLeg("BASE", true)
	m.RecordPayoutLeg("USERNAME_TIP", false)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordJanitorExpiredIgnoresNonPositive(t *testing.T) {
	m := New()
	m.RecordJanitorExpired(0)
	m.RecordJanitorExpired(-1)
	m.RecordJanitorExpired(3)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "lnbroker_janitor_expired_total" {
			found = true
			require.Len(t, f.Metric, 1)
			assert.Equal(t, float64(3), f.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestPollStatsUpdatesGauges(t *testing.T) {
	m := New()
	source := &fakeStatsSource{snap: intent.StatsSnapshot{
		ByStatus:       map[intent.Status]int64{intent.StatusPending: 2, intent.StatusCompleted: 5},
		TotalAmountSat: 10000,
		TipAmountSat:   500,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	m.PollStats(ctx, source, time.Hour, 5*time.Millisecond, zap.NewNop())

	assert.Equal(t, float64(2), testutil.ToFloat64(m.IntentsByStatus.WithLabelValues("pending")))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.IntentsByStatus.WithLabelValues("completed")))
	assert.Equal(t, float64(10000), testutil.ToFloat64(m.TotalAmountSat))
}
