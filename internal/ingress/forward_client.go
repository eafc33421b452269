package ingress

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"lnbroker/internal/intent"
	"lnbroker/internal/payout"
)

var (
	errMissingPaymentHash     = errors.New("payment_hash is required")
	errUnexpectedClaimOutcome = errors.New("unexpected claim outcome")
)

type forwardClientRequestBody struct {
	PaymentHash    string `json:"payment_hash"`
	TotalAmountSat int64  `json:"total_amount_sat"`
	Memo           string `json:"memo"`
}

type forwardClientResponseBody struct {
	Success          bool   `json:"success,omitempty"`
	BaseAmountSat    int64  `json:"base_amount,omitempty"`
	TipAmountSat     int64  `json:"tip_amount,omitempty"`
	TipResult        string `json:"tip_result,omitempty"`
	SkipForwarding   bool   `json:"skip_forwarding,omitempty"`
	AlreadyProcessed bool   `json:"already_processed,omitempty"`
}

// PostForwardClient is the POS UI's realtime-socket confirmation path.
// It mirrors the webhook's claim/build/execute sequence exactly, per
// spec.md §4.6's "identical downstream path" invariant, with its own
// HTTP status contract per spec.md §6: 409 for already-processing (the
// caller should not retry on its own), 200 with skip_forwarding for
// not-found/already-completed, 500 for execution failure.
func (h *handlers) PostForwardClient(w http.ResponseWriter, r *http.Request) {
	var body forwardClientRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if body.PaymentHash == "" {
		writeJSONError(w, http.StatusBadRequest, errMissingPaymentHash)
		return
	}

	ctx := r.Context()
	claimMeta := map[string]string{"source": "client"}
	res, err := h.deps.Claimer.Claim(ctx, body.PaymentHash, claimMeta)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	switch res.Outcome {
	case intent.ClaimOutcomeAlreadyProcessing:
		writeJSON(w, http.StatusConflict, forwardClientResponseBody{SkipForwarding: true})

	case intent.ClaimOutcomeAlreadyTerminal, intent.ClaimOutcomeNotFound:
		writeJSON(w, http.StatusOK, forwardClientResponseBody{SkipForwarding: true, AlreadyProcessed: true})

	case intent.ClaimOutcomeClaimed:
		outcome := h.buildAndExecute(ctx, res.Intent)
		if !outcome.Base.OK {
			// Execute already released the claim back to pending; the
			// caller is expected to retry, per spec.md §6.
			writeJSONError(w, http.StatusInternalServerError, errBaseLegFailed)
			return
		}
		writeJSON(w, http.StatusOK, forwardClientResponseBody{
			Success:       outcome.Success,
			BaseAmountSat: outcome.Base.AmountSat,
			TipAmountSat:  sumTipAmounts(outcome),
			TipResult:     tipResultSummary(outcome),
		})

	default:
		h.deps.Logger.Error("forward/client: unexpected claim outcome", zap.String("payment_hash", body.PaymentHash), zap.String("outcome", string(res.Outcome)))
		writeJSONError(w, http.StatusInternalServerError, errUnexpectedClaimOutcome)
	}
}

func sumTipAmounts(outcome payout.PlanOutcome) int64 {
	var total int64
	for _, t := range outcome.Tips {
		if t.OK {
			total += t.AmountSat
		}
	}
	return total
}

func tipResultSummary(outcome payout.PlanOutcome) string {
	switch {
	case len(outcome.Tips) == 0:
		return "none"
	case outcome.Success:
		return "success"
	case outcome.PartialSuccess:
		return "partial"
	default:
		return "failed"
	}
}
