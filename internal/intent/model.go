// Package intent holds the durable payment-intent store: the single
// source of truth for a broker invoice's forwarding contract and its
// status transitions.
package intent

import "time"

// Status is a PaymentIntent's position in the forwarding state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Environment pins which set of provider/LND endpoints an intent's
// downstream adapter calls target. Fixed at creation; never read from an
// ingress request at forwarding time.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
)

// DestinationMode is the tagged forwarding-destination variant.
type DestinationMode string

const (
	DestinationAPIKey    DestinationMode = "api_key"
	DestinationLNAddress DestinationMode = "ln_address"
	DestinationNpubCash  DestinationMode = "npub_cash"
	DestinationNWC       DestinationMode = "nwc"
)

// Destination is exactly-one-of-four forwarding targets chosen at intent
// creation. Only the fields for Mode are meaningful; the rest are zero.
type Destination struct {
	Mode DestinationMode

	// api_key
	APIKey       string `json:"api_key,omitempty"`
	APIWalletID  string `json:"api_wallet_id,omitempty"`

	// ln_address
	LNAddressUsername string `json:"ln_address_username,omitempty"`
	LNAddressWalletID string `json:"ln_address_wallet_id,omitempty"`

	// npub_cash
	NpubCashAddress string `json:"npubcash_address,omitempty"`

	// nwc — ciphertext only; never the plaintext URI.
	NWCURIEncrypted string `json:"nwc_uri_encrypted,omitempty"`
}

// TipRecipient is one weighted share of the tip pool. Handle is either a
// provider username or a full "user@npub.cash" address.
type TipRecipient struct {
	Handle       string  `json:"handle"`
	SharePercent float64 `json:"share_percent"`
}

// PaymentIntent is the authoritative record of one inbound payment's
// forwarding contract.
type PaymentIntent struct {
	PaymentHash string

	TotalAmountSat int64
	BaseAmountSat  int64
	TipAmountSat   int64
	TipPercent     float64

	DisplayCurrency   string
	BaseAmountDisplay string
	TipAmountDisplay  string
	Memo              string

	// UserAPIKeyHash is the hex SHA-256 of the merchant's provider
	// credential, or a fixed sentinel for credential-less modes. Never
	// empty.
	UserAPIKeyHash string
	UserWalletID   string

	Destination   Destination
	TipRecipients []TipRecipient

	Environment Environment
	Status      Status

	CreatedAt   time.Time
	ExpiresAt   time.Time
	ProcessedAt *time.Time

	// Metadata carries claim timestamps and last-error tracing. Destination
	// and TipRecipients are mirrored into reserved keys here on write (see
	// encodeMetadata) so the relational schema stays narrow, per spec's
	// Design Note on dynamic field unions; callers should use the typed
	// fields above rather than poking at the reserved keys directly.
	Metadata map[string]string
}

// Sentinel values for credential-less destination modes, so
// UserAPIKeyHash/UserWalletID are never empty/NULL regardless of mode.
const (
	SentinelNoAPIKey  = "no_api_key"
	SentinelNoWallet  = "no_wallet"
)

// CloneMetadata returns a shallow copy of m, or an empty non-nil map if m
// is nil. Used so callers never mutate a PaymentIntent's stored map
// in-place.
func CloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
