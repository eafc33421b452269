// Package payout drives a forwarding.PayoutPlan through external
// Lightning adapters, base leg first, then tip legs in plan order.
package payout

import (
	"context"

	"lnbroker/internal/intent"
)

// Invoice is the subset of a provider-created invoice the executor
// needs to pay it and to know what it asked for.
type Invoice struct {
	PaymentHash string
	Bolt11      string
}

// ProviderClient is the broker's own Lightning provider: it both
// issues invoices on behalf of recipients and pays invoices out of the
// broker's own wallet.
type ProviderClient interface {
	CreateInvoiceForWallet(ctx context.Context, env intent.Environment, apiKey, walletID string, amountSat int64, memo string) (Invoice, error)
	CreateInvoiceOnBehalfOf(ctx context.Context, env intent.Environment, walletID string, amountSat int64, memo string) (Invoice, error)
	SendTipToUsername(ctx context.Context, env intent.Environment, username string, amountSat int64, memo string) error
	PayInvoice(ctx context.Context, env intent.Environment, bolt11 string) error
	ResolveUsernameToWalletID(ctx context.Context, env intent.Environment, username string) (string, error)
}

// LNURLResolver performs the two-step LNURL-pay dance against a
// Lightning Address, returning a bolt11 invoice ready to pay.
type LNURLResolver interface {
	ResolveInvoice(ctx context.Context, address string, amountSat int64, memo string) (string, error)
}

// NWCClient speaks NIP-47 over a Nostr Wallet Connect URI.
type NWCClient interface {
	MakeInvoice(ctx context.Context, uri string, amountMsat int64, memo string) (string, error)
}

// SecretCipher decrypts a stored ciphertext (an encrypted NWC
// connection URI) back to its plaintext.
type SecretCipher interface {
	Decrypt(ciphertext string) (string, error)
}
