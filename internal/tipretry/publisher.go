package tipretry

import (
	"context"

	"go.uber.org/zap"

	"lnbroker/internal/forwarding"
	"lnbroker/internal/payout"
)

// Stream is the subset of pkg/streamqueue.StreamQueue the publisher
// needs.
type Stream interface {
	Publish(ctx context.Context, stream string, data []byte) (string, error)
}

// Publisher scans a completed plan's outcome for failed, non-skipped
// tip legs and enqueues each for background retry.
type Publisher struct {
	stream     Stream
	streamName string
	logger     *zap.Logger
}

// NewPublisher builds a Publisher writing to streamName.
func NewPublisher(stream Stream, streamName string, logger *zap.Logger) *Publisher {
	return &Publisher{stream: stream, streamName: streamName, logger: logger}
}

// PublishFailedLegs enqueues every failed, non-skipped tip leg in outcome.
func (p *Publisher) PublishFailedLegs(ctx context.Context, paymentHash string, outcome payout.PlanOutcome) {
	for _, leg := range outcome.Tips {
		if leg.Skipped || leg.OK {
			continue
		}
		p.publishOne(ctx, paymentHash, leg)
	}
}

func (p *Publisher) publishOne(ctx context.Context, paymentHash string, leg payout.LegOutcome) {
	if leg.Kind != forwarding.LegUsernameTip && leg.Kind != forwarding.LegLNURLTip {
		p.logger.Warn("skipping retry publish for unsupported leg kind", zap.String("payment_hash", paymentHash), zap.String("kind", string(leg.Kind)))
		return
	}

	msg := &FailedTipMessage{
		PaymentHash: paymentHash,
		Handle:      leg.Handle,
		AmountSat:   leg.AmountSat,
		Kind:        leg.Kind,
		LastError:   leg.Error,
	}

	data, err := msg.ToJSON()
	if err != nil {
		p.logger.Error("failed to marshal tip retry message", zap.String("payment_hash", paymentHash), zap.Error(err))
		return
	}

	if _, err := p.stream.Publish(ctx, p.streamName, data); err != nil {
		p.logger.Error("failed to publish tip retry message", zap.String("payment_hash", paymentHash), zap.Error(err))
	}
}
