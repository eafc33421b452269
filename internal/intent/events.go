package intent

import "time"

// EventOutcome is the result recorded on a ForwardingEvent row.
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "success"
	OutcomeFailure EventOutcome = "failure"
)

// Event kinds appended across the intent lifecycle. C5 appends
// "forwarded" and "tip_sent" with per-leg metadata; no current code path
// appends "webhook_forward".
const (
	EventCreated              = "created"
	EventClaimedForProcessing = "claimed_for_processing"
	EventClaimReleased        = "claim_released"
	EventForwarded            = "forwarded"
	EventTipSent              = "tip_sent"
	EventWebhookForward       = "webhook_forward"
	EventStatusCompleted      = "status_completed"
	EventStatusFailed         = "status_failed"
	EventStatusExpired        = "status_expired"
)

// ForwardingEvent is an append-only audit row.
type ForwardingEvent struct {
	ID           string
	PaymentHash  string
	Kind         string
	Outcome      EventOutcome
	Metadata     map[string]string
	ErrorMessage string
	Ts           time.Time
}

// StatsSnapshot is the read-only aggregate IntentStore.Stats returns.
type StatsSnapshot struct {
	ByStatus        map[Status]int64
	TotalAmountSat  int64
	TipAmountSat    int64
}
