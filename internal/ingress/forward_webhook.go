package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"lnbroker/internal/intent"
)

var errWebhookSignatureInvalid = errors.New("webhook signature did not match any configured secret")

// webhookEnvelope is the upstream Lightning provider's delivery
// envelope: enough of it to filter non-receive, non-success events and
// extract the broker invoice's payment_hash.
type webhookEnvelope struct {
	Type           string `json:"type"`
	TransactionRef struct {
		Status     string `json:"status"`
		Initiation struct {
			PaymentHash string `json:"payment_hash"`
		} `json:"initiation_payload"`
	} `json:"transaction"`
}

const webhookSignatureHeader = "X-Webhook-Signature"

// PostForwardWebhook is the Lightning provider's delivery path. See
// spec.md §4.6: verify against each configured secret, ignore events
// outside receive.*/success, ignore missing payment_hash, then the
// same claim/build/execute sequence as the client path — but any
// outcome the core considers "nothing to do" is still 200 so the
// provider does not keep retrying, and only unexpected failures return
// 500 to request redelivery.
func (h *handlers) PostForwardWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	sig := r.Header.Get(webhookSignatureHeader)
	if idx := verifyWebhookSignature(h.deps.WebhookSecrets, body, sig); idx < 0 {
		writeJSONError(w, http.StatusUnauthorized, errWebhookSignatureInvalid)
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	if !strings.HasPrefix(envelope.Type, "receive.") || envelope.TransactionRef.Status != "success" {
		writeJSON(w, http.StatusOK, map[string]string{"result": "ignored"})
		return
	}

	paymentHash := envelope.TransactionRef.Initiation.PaymentHash
	if paymentHash == "" {
		writeJSON(w, http.StatusOK, map[string]string{"result": "ignored"})
		return
	}

	ctx := r.Context()
	claimMeta := map[string]string{"source": "webhook"}
	res, err := h.deps.Claimer.Claim(ctx, paymentHash, claimMeta)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	switch res.Outcome {
	case intent.ClaimOutcomeAlreadyTerminal:
		if res.TerminalStatus == intent.StatusCompleted {
			writeJSON(w, http.StatusOK, map[string]string{"result": "idempotent"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"result": "ignored"})

	case intent.ClaimOutcomeAlreadyProcessing:
		writeJSON(w, http.StatusOK, map[string]string{"result": "already_claimed"})

	case intent.ClaimOutcomeNotFound:
		writeJSON(w, http.StatusOK, map[string]string{"result": "ignored"})

	case intent.ClaimOutcomeClaimed:
		h.executeWebhookPlan(ctx, w, res.Intent)

	default:
		h.deps.Logger.Error("forward/webhook: unexpected claim outcome", zap.String("payment_hash", paymentHash), zap.String("outcome", string(res.Outcome)))
		writeJSONError(w, http.StatusInternalServerError, errUnexpectedClaimOutcome)
	}
}

// executeWebhookPlan runs C4+C5 for a claimed webhook delivery. On any
// planning/execution exception the claim is released and the upstream
// delivery system is asked to retry via 500, per spec.md §4.6.
func (h *handlers) executeWebhookPlan(ctx context.Context, w http.ResponseWriter, in *intent.PaymentIntent) {
	outcome := h.buildAndExecute(ctx, in)
	if !outcome.Base.OK {
		// Execute already released the claim back to pending; asking for
		// redelivery here is what lets the next webhook attempt retry it.
		writeJSONError(w, http.StatusInternalServerError, errBaseLegFailed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":          "forwarded",
		"success":         outcome.Success,
		"partial_success": outcome.PartialSuccess,
	})
}

var errBaseLegFailed = errors.New("base payout leg failed")
