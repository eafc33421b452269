// Package invoiceapi is C8, IngressInvoiceAPI: it creates the broker's
// own invoice on behalf of a merchant and persists the forwarding
// intent before that invoice is ever observable to a payer.
package invoiceapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lnbroker/internal/intent"
)

// ErrValidation is returned for malformed CreateInvoice requests; no
// state is written and callers should surface it as an HTTP 400.
var ErrValidation = errors.New("invalid invoice request")

// Invoice is the subset of a broker-issued invoice the API returns to
// the merchant terminal.
type Invoice struct {
	PaymentHash string
	Bolt11      string
}

// ProviderClient issues the broker-owned invoice a customer pays.
type ProviderClient interface {
	CreateBrokerInvoice(ctx context.Context, env intent.Environment, amountSat int64, memo string) (Invoice, error)
}

// Store is the slice of intent.Store the API needs: Insert, per
// spec.md's ordering rule that the intent must exist before the
// invoice is observable to payers, plus AppendEvent to record the
// intent's creation in the audit log.
type Store interface {
	Insert(ctx context.Context, in *intent.PaymentIntent) error
	AppendEvent(ctx context.Context, paymentHash, kind string, outcome intent.EventOutcome, metadata map[string]string, errMsg string)
}

// Cache is the optional hot-cache mirror; nil when hot_cache_enabled
// is false.
type Cache interface {
	Put(ctx context.Context, in *intent.PaymentIntent, ttl time.Duration)
}

// SecretCipher encrypts a plaintext NWC connection URI for storage.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
}

// DestinationRequest mirrors the request body's tagged destination
// union; only the fields for Mode are meaningful.
type DestinationRequest struct {
	Mode intent.DestinationMode

	APIKey      string
	APIWalletID string

	LNAddressUsername string
	LNAddressWalletID string

	NpubCashAddress string

	// NWCURI is the plaintext connection URI as supplied by the
	// merchant; CreateInvoice encrypts it before it ever reaches the
	// store.
	NWCURI string
}

// CreateInvoiceRequest is the validated input to CreateInvoice.
type CreateInvoiceRequest struct {
	BaseAmountSat int64
	TipAmountSat  int64
	TipPercent    float64

	DisplayCurrency   string
	BaseAmountDisplay string
	TipAmountDisplay  string
	Memo              string

	UserAPIKeyHash string
	UserWalletID   string

	Destination   DestinationRequest
	TipRecipients []intent.TipRecipient

	Environment intent.Environment
}

// CreateInvoiceResponse is what the merchant terminal receives back.
type CreateInvoiceResponse struct {
	PaymentRequest string
	PaymentHash    string
	SatoshisTotal  int64
}

// Config bounds and defaults the API enforces on every request.
type Config struct {
	MaxTipRecipients int
	ActiveTTL        time.Duration
}

// API implements CreateInvoice (C8).
type API struct {
	provider ProviderClient
	store    Store
	cache    Cache
	cipher   SecretCipher
	cfg      Config
	logger   *zap.Logger
}

// New builds an API. cache and cipher may be nil (no hot cache
// configured, or no intent in this batch uses the nwc destination).
func New(provider ProviderClient, store Store, cache Cache, cipher SecretCipher, cfg Config, zapLogger *zap.Logger) *API {
	if cfg.MaxTipRecipients <= 0 {
		cfg.MaxTipRecipients = 32
	}
	if cfg.ActiveTTL <= 0 {
		cfg.ActiveTTL = 15 * time.Minute
	}
	return &API{provider: provider, store: store, cache: cache, cipher: cipher, cfg: cfg, logger: zapLogger}
}

// CreateInvoice validates req, asks the provider for a broker invoice,
// persists the forwarding intent, best-effort warms the hot cache, and
// returns the invoice payload. The intent is inserted before this
// function returns so a very-fast payment can never reach the webhook
// before its intent exists.
func (a *API) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (CreateInvoiceResponse, error) {
	if err := validate(req, a.cfg.MaxTipRecipients); err != nil {
		return CreateInvoiceResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	total := req.BaseAmountSat + req.TipAmountSat

	inv, err := a.provider.CreateBrokerInvoice(ctx, req.Environment, total, req.Memo)
	if err != nil {
		return CreateInvoiceResponse{}, fmt.Errorf("create broker invoice: %w", err)
	}

	dest, err := a.buildDestination(req.Destination)
	if err != nil {
		return CreateInvoiceResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	in := &intent.PaymentIntent{
		PaymentHash:       inv.PaymentHash,
		TotalAmountSat:    total,
		BaseAmountSat:     req.BaseAmountSat,
		TipAmountSat:      req.TipAmountSat,
		TipPercent:        req.TipPercent,
		DisplayCurrency:   req.DisplayCurrency,
		BaseAmountDisplay: req.BaseAmountDisplay,
		TipAmountDisplay:  req.TipAmountDisplay,
		Memo:              req.Memo,
		UserAPIKeyHash:    req.UserAPIKeyHash,
		UserWalletID:      req.UserWalletID,
		Destination:       dest,
		TipRecipients:     req.TipRecipients,
		Environment:       req.Environment,
	}

	if err := a.store.Insert(ctx, in); err != nil {
		// An invoice was created upstream but not persisted: rely on
		// Janitor/provider-side expiry rather than retrying with a
		// fresh invoice, per spec.md §4.8 step 3.
		return CreateInvoiceResponse{}, fmt.Errorf("persist payment intent: %w", err)
	}
	a.store.AppendEvent(ctx, in.PaymentHash, intent.EventCreated, intent.OutcomeSuccess, nil, "")

	if a.cache != nil {
		a.cache.Put(ctx, in, a.cfg.ActiveTTL)
	}

	a.logger.Info("broker invoice created", zap.String("payment_hash", in.PaymentHash), zap.Int64("total_amount_sat", total))

	return CreateInvoiceResponse{
		PaymentRequest: inv.Bolt11,
		PaymentHash:    inv.PaymentHash,
		SatoshisTotal:  total,
	}, nil
}

func (a *API) buildDestination(req DestinationRequest) (intent.Destination, error) {
	dest := intent.Destination{Mode: req.Mode}
	switch req.Mode {
	case intent.DestinationAPIKey:
		dest.APIKey = req.APIKey
		dest.APIWalletID = req.APIWalletID
	case intent.DestinationLNAddress:
		dest.LNAddressUsername = req.LNAddressUsername
		dest.LNAddressWalletID = req.LNAddressWalletID
	case intent.DestinationNpubCash:
		dest.NpubCashAddress = req.NpubCashAddress
	case intent.DestinationNWC:
		if a.cipher == nil {
			return intent.Destination{}, errors.New("nwc destination requires a configured secret cipher")
		}
		ciphertext, err := a.cipher.Encrypt(req.NWCURI)
		if err != nil {
			return intent.Destination{}, fmt.Errorf("encrypt nwc uri: %w", err)
		}
		dest.NWCURIEncrypted = ciphertext
	}
	return dest, nil
}

func validate(req CreateInvoiceRequest, maxTipRecipients int) error {
	if req.BaseAmountSat < 0 || req.TipAmountSat < 0 {
		return errors.New("amounts must be non-negative")
	}
	if req.BaseAmountSat+req.TipAmountSat <= 0 {
		return errors.New("amount must be greater than zero")
	}
	if req.BaseAmountSat == 0 && req.TipAmountSat == 0 {
		return errors.New("amount must be greater than zero")
	}

	switch req.Environment {
	case intent.EnvironmentProduction, intent.EnvironmentStaging:
	default:
		return fmt.Errorf("unknown environment %q", req.Environment)
	}

	switch req.Destination.Mode {
	case intent.DestinationAPIKey:
		if req.Destination.APIKey == "" || req.Destination.APIWalletID == "" {
			return errors.New("api_key destination requires api_key and wallet_id")
		}
	case intent.DestinationLNAddress:
		if req.Destination.LNAddressUsername == "" {
			return errors.New("ln_address destination requires username")
		}
	case intent.DestinationNpubCash:
		if req.Destination.NpubCashAddress == "" {
			return errors.New("npub_cash destination requires address")
		}
	case intent.DestinationNWC:
		if req.Destination.NWCURI == "" {
			return errors.New("nwc destination requires a connection uri")
		}
	default:
		return fmt.Errorf("a destination mode must be unambiguously specified, got %q", req.Destination.Mode)
	}

	if len(req.TipRecipients) > maxTipRecipients {
		return fmt.Errorf("at most %d tip recipients are allowed, got %d", maxTipRecipients, len(req.TipRecipients))
	}
	for _, r := range req.TipRecipients {
		if r.Handle == "" {
			return errors.New("tip recipient handle must not be empty")
		}
	}

	return nil
}
