package payout

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lnbroker/internal/forwarding"
	"lnbroker/internal/intent"
)

// Claimer is the narrow slice of internal/claim.Claimer the executor
// needs: release on base failure, complete on base success.
type Claimer interface {
	Release(ctx context.Context, paymentHash string, reason string)
	Complete(ctx context.Context, paymentHash string, summary map[string]string) error
}

// EventAppender records a tip/base outcome for operator visibility.
// Satisfied by internal/intent.Store.AppendEvent.
type EventAppender interface {
	AppendEvent(ctx context.Context, paymentHash, kind string, outcome intent.EventOutcome, metadata map[string]string, errMsg string)
}

// Metrics is the subset of metrics.Metrics the executor reports to.
type Metrics interface {
	RecordPayoutLeg(kind string, ok bool)
	ObserveForwardDuration(d time.Duration)
}

// Clock supplies "now" for measuring a plan's wall-clock duration.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// LegOutcome is one leg's result in the reported plan outcome.
type LegOutcome struct {
	Handle    string
	AmountSat int64
	Kind      forwarding.LegKind
	OK        bool
	Skipped   bool
	Error     string
}

// PlanOutcome is the executor's report for a single plan run, shaped
// exactly per the base/tips/success/partial_success contract.
type PlanOutcome struct {
	Base           LegOutcome
	Tips           []LegOutcome
	Success        bool
	PartialSuccess bool
}

// Executor drives a forwarding.PayoutPlan to completion.
type Executor struct {
	provider ProviderClient
	lnurl    LNURLResolver
	nwc      NWCClient
	cipher   SecretCipher
	claimer  Claimer
	events   EventAppender
	metrics  Metrics
	clock    Clock
	logger   *zap.Logger
}

// New builds an Executor. metrics may be nil when no metrics registry is
// configured; clock defaults to the system clock when nil.
func New(provider ProviderClient, lnurl LNURLResolver, nwc NWCClient, cipher SecretCipher, claimer Claimer, events EventAppender, metrics Metrics, clock Clock, logger *zap.Logger) *Executor {
	if clock == nil {
		clock = systemClock{}
	}
	return &Executor{
		provider: provider,
		lnurl:    lnurl,
		nwc:      nwc,
		cipher:   cipher,
		claimer:  claimer,
		events:   events,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
	}
}

// Execute drives plan for in, base leg first, strictly before any tip
// leg. A failed base leg aborts the plan and releases the claim. On
// base success the claim is completed regardless of tip outcomes.
func (e *Executor) Execute(ctx context.Context, in *intent.PaymentIntent, plan forwarding.PayoutPlan) PlanOutcome {
	if len(plan.Legs) == 0 {
		return PlanOutcome{Success: true}
	}

	start := e.clock.Now()
	if e.metrics != nil {
		defer func() {
			e.metrics.ObserveForwardDuration(e.clock.Now().Sub(start))
		}()
	}

	base := plan.Legs[0]
	baseOutcome := e.payLeg(ctx, in, base)
	e.recordLeg(ctx, in.PaymentHash, "forwarded", baseOutcome)

	outcome := PlanOutcome{Base: baseOutcome}

	if !baseOutcome.OK {
		e.claimer.Release(ctx, in.PaymentHash, baseOutcome.Error)
		outcome.Success = false
		outcome.PartialSuccess = false
		return outcome
	}

	anyTipOK := false
	allTipOK := true
	for _, leg := range plan.Legs[1:] {
		var tipOutcome LegOutcome
		if leg.Skipped {
			tipOutcome = LegOutcome{Handle: leg.Handle, AmountSat: leg.AmountSat, Kind: leg.Kind, Skipped: true, Error: leg.SkipReason}
			e.recordLeg(ctx, in.PaymentHash, "tip_sent", tipOutcome)
		} else {
			tipOutcome = e.payLeg(ctx, in, leg)
			e.recordLeg(ctx, in.PaymentHash, "tip_sent", tipOutcome)
		}

		if !tipOutcome.Skipped {
			if tipOutcome.OK {
				anyTipOK = true
			} else {
				allTipOK = false
			}
		}
		outcome.Tips = append(outcome.Tips, tipOutcome)
	}

	outcome.Success = allTipOK
	outcome.PartialSuccess = anyTipOK && !allTipOK

	summary := map[string]string{
		"base_ok": boolString(baseOutcome.OK),
	}
	if err := e.claimer.Complete(ctx, in.PaymentHash, summary); err != nil {
		e.logger.Error("claimer complete failed after successful base leg", zap.String("payment_hash", in.PaymentHash), zap.Error(err))
	}

	return outcome
}

// RetryTip replays a single previously-failed tip leg outside the
// claim lifecycle: it neither claims nor completes/releases, since the
// parent intent was already completed (its base leg succeeded) by the
// time a tip retry runs. The outcome is recorded as a tip_sent event
// (and in metrics when configured) and returned to the caller.
func (e *Executor) RetryTip(ctx context.Context, in *intent.PaymentIntent, leg forwarding.Leg) LegOutcome {
	outcome := e.payLeg(ctx, in, leg)
	e.recordLeg(ctx, in.PaymentHash, "tip_sent", outcome)
	return outcome
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (e *Executor) recordLeg(ctx context.Context, paymentHash, kind string, leg LegOutcome) {
	outcome := intent.OutcomeSuccess
	if !leg.OK && !leg.Skipped {
		outcome = intent.OutcomeFailure
	}
	meta := map[string]string{
		"handle":     leg.Handle,
		"amount_sat": fmt.Sprintf("%d", leg.AmountSat),
		"kind":       string(leg.Kind),
	}
	if leg.Skipped {
		meta["skipped"] = "true"
	}
	e.events.AppendEvent(ctx, paymentHash, kind, outcome, meta, leg.Error)

	if e.metrics != nil && !leg.Skipped {
		e.metrics.RecordPayoutLeg(string(leg.Kind), leg.OK)
	}
}

// payLeg pays a single non-skipped leg according to its destination
// mode (base leg) or its tip kind (tip legs), returning whether the
// external adapter reported success.
func (e *Executor) payLeg(ctx context.Context, in *intent.PaymentIntent, leg forwarding.Leg) LegOutcome {
	outcome := LegOutcome{Handle: leg.Handle, AmountSat: leg.AmountSat, Kind: leg.Kind}

	if leg.Kind == forwarding.LegBase {
		if err := e.payDestination(ctx, in, leg); err != nil {
			outcome.Error = err.Error()
			return outcome
		}
		outcome.OK = true
		return outcome
	}

	if err := e.payTipLeg(ctx, in, leg); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.OK = true
	return outcome
}

// payDestination pays the base leg to whichever destination mode the
// intent specifies.
func (e *Executor) payDestination(ctx context.Context, in *intent.PaymentIntent, leg forwarding.Leg) error {
	dest := leg.Destination
	env := in.Environment

	switch dest.Mode {
	case intent.DestinationAPIKey:
		inv, err := e.provider.CreateInvoiceForWallet(ctx, env, dest.APIKey, dest.APIWalletID, leg.AmountSat, leg.Memo)
		if err != nil {
			return fmt.Errorf("create invoice for wallet: %w", err)
		}
		return e.provider.PayInvoice(ctx, env, inv.Bolt11)

	case intent.DestinationLNAddress:
		walletID, err := e.provider.ResolveUsernameToWalletID(ctx, env, dest.LNAddressUsername)
		if err != nil {
			walletID = dest.LNAddressWalletID
		}
		if walletID == "" {
			return fmt.Errorf("resolve ln_address username %q: no wallet id available", dest.LNAddressUsername)
		}
		inv, err := e.provider.CreateInvoiceOnBehalfOf(ctx, env, walletID, leg.AmountSat, leg.Memo)
		if err != nil {
			return fmt.Errorf("create invoice on behalf of %q: %w", dest.LNAddressUsername, err)
		}
		return e.provider.PayInvoice(ctx, env, inv.Bolt11)

	case intent.DestinationNpubCash:
		bolt11, err := e.lnurl.ResolveInvoice(ctx, dest.NpubCashAddress, leg.AmountSat, leg.Memo)
		if err != nil {
			return fmt.Errorf("resolve lnurl invoice for %q: %w", dest.NpubCashAddress, err)
		}
		return e.provider.PayInvoice(ctx, env, bolt11)

	case intent.DestinationNWC:
		uri, err := e.cipher.Decrypt(dest.NWCURIEncrypted)
		if err != nil {
			return fmt.Errorf("decrypt nwc uri: %w", err)
		}
		bolt11, err := e.nwc.MakeInvoice(ctx, uri, leg.AmountSat*1000, leg.Memo)
		if err != nil {
			return fmt.Errorf("nwc make_invoice: %w", err)
		}
		return e.provider.PayInvoice(ctx, env, bolt11)

	default:
		return fmt.Errorf("unknown destination mode %q", dest.Mode)
	}
}

// payTipLeg pays a single tip recipient per their classified kind.
func (e *Executor) payTipLeg(ctx context.Context, in *intent.PaymentIntent, leg forwarding.Leg) error {
	switch leg.Kind {
	case forwarding.LegUsernameTip:
		return e.provider.SendTipToUsername(ctx, in.Environment, leg.Handle, leg.AmountSat, leg.Memo)

	case forwarding.LegLNURLTip:
		bolt11, err := e.lnurl.ResolveInvoice(ctx, leg.Handle, leg.AmountSat, leg.Memo)
		if err != nil {
			return fmt.Errorf("resolve lnurl invoice for %q: %w", leg.Handle, err)
		}
		return e.provider.PayInvoice(ctx, in.Environment, bolt11)

	default:
		return fmt.Errorf("unknown tip leg kind %q", leg.Kind)
	}
}
