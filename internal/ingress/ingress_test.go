package ingress

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lnbroker/internal/forwarding"
	"lnbroker/internal/intent"
	"lnbroker/internal/invoiceapi"
	"lnbroker/internal/payout"
)

type fakeClaimer struct {
	result   intent.ClaimResult
	err      error
	released []string
}

func (f *fakeClaimer) Claim(ctx context.Context, paymentHash string, claimMetadata map[string]string) (intent.ClaimResult, error) {
	return f.result, f.err
}

func (f *fakeClaimer) Release(ctx context.Context, paymentHash string, reason string) {
	f.released = append(f.released, paymentHash)
}

type fakeExecutor struct {
	outcome payout.PlanOutcome
}

func (f *fakeExecutor) Execute(ctx context.Context, in *intent.PaymentIntent, plan forwarding.PayoutPlan) payout.PlanOutcome {
	return f.outcome
}

type fakeInvoiceAPI struct {
	resp invoiceapi.CreateInvoiceResponse
	err  error
}

func (f *fakeInvoiceAPI) CreateInvoice(ctx context.Context, req invoiceapi.CreateInvoiceRequest) (invoiceapi.CreateInvoiceResponse, error) {
	return f.resp, f.err
}

func newTestRouter(claimer *fakeClaimer, executor *fakeExecutor, invAPI *fakeInvoiceAPI, secrets []string) http.Handler {
	return NewRouter(Deps{
		Claimer:        claimer,
		Executor:       executor,
		InvoiceAPI:     invAPI,
		WebhookSecrets: secrets,
		Logger:         zap.NewNop(),
	})
}

func TestPostInvoiceSuccess(t *testing.T) {
	invAPI := &fakeInvoiceAPI{resp: invoiceapi.CreateInvoiceResponse{PaymentRequest: "lnbc1", PaymentHash: "hash1", SatoshisTotal: 1200}}
	router := newTestRouter(&fakeClaimer{}, &fakeExecutor{}, invAPI, nil)

	body := `{"base_amount_sat":1000,"tip_amount_sat":200,"environment":"production","destination":{"api_key":{"key":"k","wallet_id":"w"}}}`
	req := httptest.NewRequest(http.MethodPost, "/invoice", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp createInvoiceResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hash1", resp.PaymentHash)
	assert.Equal(t, int64(1200), resp.Satoshis)
}

func TestPostInvoiceAmbiguousDestinationReturns400(t *testing.T) {
	router := newTestRouter(&fakeClaimer{}, &fakeExecutor{}, &fakeInvoiceAPI{}, nil)

	body := `{"base_amount_sat":1000,"environment":"production","destination":{}}`
	req := httptest.NewRequest(http.MethodPost, "/invoice", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostInvoiceValidationErrorReturns400(t *testing.T) {
	invAPI := &fakeInvoiceAPI{err: invoiceapi.ErrValidation}
	router := newTestRouter(&fakeClaimer{}, &fakeExecutor{}, invAPI, nil)

	body := `{"base_amount_sat":1000,"environment":"production","destination":{"api_key":{"key":"k","wallet_id":"w"}}}`
	req := httptest.NewRequest(http.MethodPost, "/invoice", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostForwardClientClaimedExecutesAndReturns200(t *testing.T) {
	claimer := &fakeClaimer{result: intent.ClaimResult{Outcome: intent.ClaimOutcomeClaimed, Intent: &intent.PaymentIntent{PaymentHash: "hash1"}}}
	executor := &fakeExecutor{outcome: payout.PlanOutcome{
		Base:    payout.LegOutcome{OK: true, AmountSat: 1000},
		Tips:    []payout.LegOutcome{{OK: true, AmountSat: 200}},
		Success: true,
	}}
	router := newTestRouter(claimer, executor, &fakeInvoiceAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/forward/client", bytes.NewBufferString(`{"payment_hash":"hash1","total_amount_sat":1200}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp forwardClientResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(1000), resp.BaseAmountSat)
	assert.Equal(t, int64(200), resp.TipAmountSat)
}

func TestPostForwardClientAlreadyProcessingReturns409(t *testing.T) {
	claimer := &fakeClaimer{result: intent.ClaimResult{Outcome: intent.ClaimOutcomeAlreadyProcessing}}
	router := newTestRouter(claimer, &fakeExecutor{}, &fakeInvoiceAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/forward/client", bytes.NewBufferString(`{"payment_hash":"hash1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostForwardClientAlreadyTerminalReturns200SkipForwarding(t *testing.T) {
	claimer := &fakeClaimer{result: intent.ClaimResult{Outcome: intent.ClaimOutcomeAlreadyTerminal, TerminalStatus: intent.StatusCompleted}}
	router := newTestRouter(claimer, &fakeExecutor{}, &fakeInvoiceAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/forward/client", bytes.NewBufferString(`{"payment_hash":"hash1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp forwardClientResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.SkipForwarding)
	assert.True(t, resp.AlreadyProcessed)
}

func TestPostForwardClientNotFoundReturns200SkipForwarding(t *testing.T) {
	claimer := &fakeClaimer{result: intent.ClaimResult{Outcome: intent.ClaimOutcomeNotFound}}
	router := newTestRouter(claimer, &fakeExecutor{}, &fakeInvoiceAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/forward/client", bytes.NewBufferString(`{"payment_hash":"hash1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostForwardClientBaseFailureReturns500(t *testing.T) {
	claimer := &fakeClaimer{result: intent.ClaimResult{Outcome: intent.ClaimOutcomeClaimed, Intent: &intent.PaymentIntent{PaymentHash: "hash1"}}}
	executor := &fakeExecutor{outcome: payout.PlanOutcome{Base: payout.LegOutcome{OK: false, Error: "payment failed"}}}
	router := newTestRouter(claimer, executor, &fakeInvoiceAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/forward/client", bytes.NewBufferString(`{"payment_hash":"hash1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPostForwardClientMissingPaymentHashReturns400(t *testing.T) {
	router := newTestRouter(&fakeClaimer{}, &fakeExecutor{}, &fakeInvoiceAPI{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/forward/client", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPostForwardWebhookInvalidSignatureReturns401(t *testing.T) {
	router := newTestRouter(&fakeClaimer{}, &fakeExecutor{}, &fakeInvoiceAPI{}, []string{"secret1"})

	body := []byte(`{"type":"receive.lightning","transaction":{"status":"success","initiation_payload":{"payment_hash":"hash1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/forward/webhook", bytes.NewBuffer(body))
	req.Header.Set(webhookSignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostForwardWebhookValidSignatureClaimedExecutes(t *testing.T) {
	claimer := &fakeClaimer{result: intent.ClaimResult{Outcome: intent.ClaimOutcomeClaimed, Intent: &intent.PaymentIntent{PaymentHash: "hash1"}}}
	executor := &fakeExecutor{outcome: payout.PlanOutcome{Base: payout.LegOutcome{OK: true}, Success: true}}
	router := newTestRouter(claimer, executor, &fakeInvoiceAPI{}, []string{"secret1"})

	body := []byte(`{"type":"receive.lightning","transaction":{"status":"success","initiation_payload":{"payment_hash":"hash1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/forward/webhook", bytes.NewBuffer(body))
	req.Header.Set(webhookSignatureHeader, signBody("secret1", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostForwardWebhookIgnoresNonReceiveEvents(t *testing.T) {
	router := newTestRouter(&fakeClaimer{}, &fakeExecutor{}, &fakeInvoiceAPI{}, []string{"secret1"})

	body := []byte(`{"type":"send.lightning","transaction":{"status":"success","initiation_payload":{"payment_hash":"hash1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/forward/webhook", bytes.NewBuffer(body))
	req.Header.Set(webhookSignatureHeader, signBody("secret1", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostForwardWebhookIgnoresMissingPaymentHash(t *testing.T) {
	router := newTestRouter(&fakeClaimer{}, &fakeExecutor{}, &fakeInvoiceAPI{}, []string{"secret1"})

	body := []byte(`{"type":"receive.lightning","transaction":{"status":"success","initiation_payload":{}}}`)
	req := httptest.NewRequest(http.MethodPost, "/forward/webhook", bytes.NewBuffer(body))
	req.Header.Set(webhookSignatureHeader, signBody("secret1", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostForwardWebhookAlreadyCompletedReturns200Idempotent(t *testing.T) {
	claimer := &fakeClaimer{result: intent.ClaimResult{Outcome: intent.ClaimOutcomeAlreadyTerminal, TerminalStatus: intent.StatusCompleted}}
	router := newTestRouter(claimer, &fakeExecutor{}, &fakeInvoiceAPI{}, []string{"secret1"})

	body := []byte(`{"type":"receive.lightning","transaction":{"status":"success","initiation_payload":{"payment_hash":"hash1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/forward/webhook", bytes.NewBuffer(body))
	req.Header.Set(webhookSignatureHeader, signBody("secret1", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostForwardWebhookBaseFailureReturns500(t *testing.T) {
	claimer := &fakeClaimer{result: intent.ClaimResult{Outcome: intent.ClaimOutcomeClaimed, Intent: &intent.PaymentIntent{PaymentHash: "hash1"}}}
	executor := &fakeExecutor{outcome: payout.PlanOutcome{Base: payout.LegOutcome{OK: false, Error: "timeout"}}}
	router := newTestRouter(claimer, executor, &fakeInvoiceAPI{}, []string{"secret1"})

	body := []byte(`{"type":"receive.lightning","transaction":{"status":"success","initiation_payload":{"payment_hash":"hash1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/forward/webhook", bytes.NewBuffer(body))
	req.Header.Set(webhookSignatureHeader, signBody("secret1", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthzReturns200(t *testing.T) {
	router := newTestRouter(&fakeClaimer{}, &fakeExecutor{}, &fakeInvoiceAPI{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
