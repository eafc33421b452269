// Package ingress is C6, EntrypointRouter: the webhook and client HTTP
// surfaces that both converge on Claimer.Claim before building and
// executing a payout plan. Router shape grounded on
// josephblackelite-nhbchain/gateway/routes/router.go's
// chi.NewRouter()+per-route middleware composition; JSON response
// helpers grounded on the same repo's gateway/compat and
// gateway/routes/lending.go conventions.
package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lnbroker/internal/forwarding"
	"lnbroker/internal/intent"
	"lnbroker/internal/invoiceapi"
	"lnbroker/internal/payout"
)

// Claimer is the subset of internal/claim.Claimer the router needs.
type Claimer interface {
	Claim(ctx context.Context, paymentHash string, claimMetadata map[string]string) (intent.ClaimResult, error)
	Release(ctx context.Context, paymentHash string, reason string)
}

// Executor is the subset of internal/payout.Executor the router needs.
type Executor interface {
	Execute(ctx context.Context, in *intent.PaymentIntent, plan forwarding.PayoutPlan) payout.PlanOutcome
}

// InvoiceAPI is the subset of internal/invoiceapi.API the router needs.
type InvoiceAPI interface {
	CreateInvoice(ctx context.Context, req invoiceapi.CreateInvoiceRequest) (invoiceapi.CreateInvoiceResponse, error)
}

// Deps wires every collaborator the router's handlers call into.
type Deps struct {
	Claimer    Claimer
	Executor   Executor
	InvoiceAPI InvoiceAPI

	// WebhookSecrets holds one HMAC secret per configured environment,
	// checked in order by verifyWebhookSignature.
	WebhookSecrets []string

	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// NewRouter builds the chi router exposing /invoice, /forward/client,
// /forward/webhook, /metrics and /healthz.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	h := &handlers{deps: deps}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/", func(sr chi.Router) {
		sr.Post("/invoice", h.PostInvoice)
		sr.Post("/forward/client", h.PostForwardClient)
		sr.Post("/forward/webhook", h.PostForwardWebhook)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type handlers struct {
	deps Deps
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// buildAndExecute runs C4 then C5 for a claimed intent and folds the
// result into the response the caller will write.
func (h *handlers) buildAndExecute(ctx context.Context, in *intent.PaymentIntent) payout.PlanOutcome {
	plan := forwarding.Plan(in)
	return h.deps.Executor.Execute(ctx, in, plan)
}
