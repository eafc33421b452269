package tipretry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lnbroker/internal/forwarding"
	"lnbroker/internal/payout"
)

func TestFailedTipMessageRoundTrip(t *testing.T) {
	msg := &FailedTipMessage{
		PaymentHash: "hash1",
		Handle:      "alice",
		AmountSat:   100,
		Kind:        forwarding.LegUsernameTip,
		Memo:        "tip",
		LastError:   "timeout",
	}

	data, err := msg.ToJSON()
	require.NoError(t, err)

	back, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, msg.PaymentHash, back.PaymentHash)
	assert.Equal(t, msg.Handle, back.Handle)
	assert.Equal(t, msg.AmountSat, back.AmountSat)
	assert.Equal(t, msg.Kind, back.Kind)
}

func TestFailedTipMessageValidateRejectsUnsupportedKind(t *testing.T) {
	msg := &FailedTipMessage{PaymentHash: "hash1", Handle: "alice", AmountSat: 100, Kind: forwarding.LegBase}
	assert.Error(t, msg.Validate())
}

func TestFailedTipMessageValidateRejectsZeroAmount(t *testing.T) {
	msg := &FailedTipMessage{PaymentHash: "hash1", Handle: "alice", AmountSat: 0, Kind: forwarding.LegUsernameTip}
	assert.Error(t, msg.Validate())
}

func TestFromJSONRejectsMissingFields(t *testing.T) {
	_, err := FromJSON([]byte(`{}`))
	assert.Error(t, err)
}

type fakeStream struct {
	published [][]byte
	err       error
}

func (f *fakeStream) Publish(ctx context.Context, stream string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, data)
	return "1-0", nil
}

func TestPublishFailedLegsSkipsOKAndSkippedLegs(t *testing.T) {
	stream := &fakeStream{}
	pub := NewPublisher(stream, "tip_retry", zap.NewNop())

	outcome := payout.PlanOutcome{
		Tips: []payout.LegOutcome{
			{Handle: "alice", AmountSat: 100, Kind: forwarding.LegUsernameTip, OK: true},
			{Handle: "bob", AmountSat: 50, Kind: forwarding.LegUsernameTip, Skipped: true},
			{Handle: "carol", AmountSat: 75, Kind: forwarding.LegLNURLTip, OK: false, Error: "timeout"},
		},
	}

	pub.PublishFailedLegs(context.Background(), "hash1", outcome)

	require.Len(t, stream.published, 1)
	msg, err := FromJSON(stream.published[0])
	require.NoError(t, err)
	assert.Equal(t, "carol", msg.Handle)
	assert.Equal(t, "timeout", msg.LastError)
}

func TestPublishFailedLegsToleratesStreamError(t *testing.T) {
	stream := &fakeStream{err: errors.New("redis down")}
	pub := NewPublisher(stream, "tip_retry", zap.NewNop())

	outcome := payout.PlanOutcome{
		Tips: []payout.LegOutcome{{Handle: "alice", AmountSat: 100, Kind: forwarding.LegUsernameTip, OK: false}},
	}

	assert.NotPanics(t, func() { pub.PublishFailedLegs(context.Background(), "hash1", outcome) })
}
