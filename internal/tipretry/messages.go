// Package tipretry is an operator-facing hardening feature beyond
// spec.md's distillation: a failed tip leg (one that did not abort the
// overall payout, since only the base leg is claim-critical) is
// published to a Redis stream for background retry instead of being
// silently dropped once the intent reaches completed. Message shape
// grounded on the teacher's internal/queue.FundCardMessage
// (ToJSON/FromJSON/Validate).
package tipretry

import (
	"encoding/json"
	"errors"
	"fmt"

	"lnbroker/internal/forwarding"
)

// FailedTipMessage identifies one tip leg that needs to be retried
// against an already-completed intent.
type FailedTipMessage struct {
	PaymentHash string             `json:"payment_hash"`
	Handle      string             `json:"handle"`
	AmountSat   int64              `json:"amount_sat"`
	Kind        forwarding.LegKind `json:"kind"`
	Memo        string             `json:"memo"`
	LastError   string             `json:"last_error"`
}

// ToJSON serializes m.
func (m *FailedTipMessage) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal failed tip message: %w", err)
	}
	return data, nil
}

// FromJSON deserializes and validates a FailedTipMessage.
func FromJSON(data []byte) (*FailedTipMessage, error) {
	msg := &FailedTipMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("unmarshal failed tip message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Validate checks that every field required to replay the leg is present.
func (m *FailedTipMessage) Validate() error {
	if m.PaymentHash == "" {
		return errors.New("payment_hash is required")
	}
	if m.Handle == "" {
		return errors.New("handle is required")
	}
	if m.AmountSat <= 0 {
		return errors.New("amount_sat must be greater than 0")
	}
	switch m.Kind {
	case forwarding.LegUsernameTip, forwarding.LegLNURLTip:
	default:
		return fmt.Errorf("unsupported retry leg kind %q", m.Kind)
	}
	return nil
}

// toLeg rebuilds the forwarding.Leg this message describes, for replay
// through Executor.RetryTip.
func (m *FailedTipMessage) toLeg() forwarding.Leg {
	return forwarding.Leg{
		Kind:      m.Kind,
		Handle:    m.Handle,
		AmountSat: m.AmountSat,
		Memo:      m.Memo,
	}
}
