package tipretry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"lnbroker/internal/intent"
	"lnbroker/internal/payout"
	"lnbroker/pkg/streamqueue"
)

// IntentStore is the subset of intent.Store a retry needs to rebuild
// the parent intent (for its Environment and Destination, which the
// retry executor must never re-derive from the message itself).
type IntentStore interface {
	Get(ctx context.Context, paymentHash string) (*intent.PaymentIntent, error)
}

// Consumer wires a StreamQueue consumer loop to repeated tip-leg
// retries, shaped like the teacher's worker/fund_card consumer.
type Consumer struct {
	queue      QueueConsumer
	store      IntentStore
	executor   *payout.Executor
	streamName string
	group      string
	consumer   string
	logger     *zap.Logger
}

// QueueConsumer is the subset of pkg/streamqueue.StreamQueue a Consumer
// drives.
type QueueConsumer interface {
	DeclareStream(ctx context.Context, stream, group string) error
	Consume(ctx context.Context, stream, group, consumer string, handler streamqueue.Handler)
}

// NewConsumer builds a Consumer. consumerName should be unique per
// running process (e.g. hostname:pid) so XAutoClaim attributes pending
// entries correctly across restarts.
func NewConsumer(queue QueueConsumer, store IntentStore, executor *payout.Executor, streamName, group, consumerName string, logger *zap.Logger) *Consumer {
	return &Consumer{queue: queue, store: store, executor: executor, streamName: streamName, group: group, consumer: consumerName, logger: logger}
}

// Run declares the consumer group and blocks consuming until ctx is
// cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.queue.DeclareStream(ctx, c.streamName, c.group); err != nil {
		return fmt.Errorf("declare tip retry stream: %w", err)
	}
	c.queue.Consume(ctx, c.streamName, c.group, c.consumer, c.handle)
	return nil
}

func (c *Consumer) handle(ctx context.Context, messageID string, data []byte) error {
	msg, err := FromJSON(data)
	if err != nil {
		c.logger.Error("dropping malformed tip retry message", zap.String("message_id", messageID), zap.Error(err))
		return nil
	}

	in, err := c.store.Get(ctx, msg.PaymentHash)
	if err != nil {
		return fmt.Errorf("load parent intent %s: %w", msg.PaymentHash, err)
	}
	if in == nil {
		c.logger.Warn("tip retry for unknown payment_hash, dropping", zap.String("payment_hash", msg.PaymentHash))
		return nil
	}

	leg := msg.toLeg()
	outcome := c.executor.RetryTip(ctx, in, leg)
	if !outcome.OK {
		return fmt.Errorf("tip retry failed for %s: %s", msg.Handle, outcome.Error)
	}
	return nil
}
