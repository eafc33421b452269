// Package lnurl resolves a Lightning Address (LNURL-pay) to a payable
// bolt11 invoice for a given amount.
package lnurl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"lnbroker/pkg/logger"
)

type lnurlPayMetadata struct {
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Tag         string `json:"tag"`
}

type lnurlPayCallbackResponse struct {
	PR     string `json:"pr"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Resolver resolves Lightning Addresses via the LNURL-pay protocol.
type Resolver struct {
	httpClient *http.Client
	scheme     string
}

// New builds a Resolver with a default 10s-timeout HTTP client, or
// the supplied client when not nil (for tests against httptest
// servers).
func New(httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{httpClient: httpClient, scheme: "https"}
}

// NewWithScheme is New with the well-known-document scheme overridden
// to scheme (e.g. "http"), so tests can point a Resolver at an httptest
// server.
func NewWithScheme(httpClient *http.Client, scheme string) *Resolver {
	r := New(httpClient)
	r.scheme = scheme
	return r
}

// ResolveInvoice performs the two-step LNURL-pay dance against
// address ("user@domain"): GET the well-known metadata document, then
// GET the callback with the amount in millisats, returning the
// resulting bolt11 invoice.
func (r *Resolver) ResolveInvoice(ctx context.Context, address string, amountSat int64, memo string) (string, error) {
	user, domain, err := splitAddress(address)
	if err != nil {
		return "", fmt.Errorf("lnurl: %w", err)
	}

	metadataURL := fmt.Sprintf("%s://%s/.well-known/lnurlp/%s", r.scheme, domain, user)
	var meta lnurlPayMetadata
	if err := fetchJSON(ctx, r.httpClient, metadataURL, &meta); err != nil {
		return "", fmt.Errorf("lnurl: fetch metadata for %q: %w", address, err)
	}
	if meta.Tag != "payRequest" {
		return "", fmt.Errorf("lnurl: %q is not a payRequest endpoint (tag=%q)", address, meta.Tag)
	}

	amountMsat := amountSat * 1000
	if amountMsat < meta.MinSendable || (meta.MaxSendable > 0 && amountMsat > meta.MaxSendable) {
		return "", fmt.Errorf("lnurl: amount %d msat outside %q's sendable range [%d, %d]", amountMsat, address, meta.MinSendable, meta.MaxSendable)
	}

	sep := "?"
	if strings.Contains(meta.Callback, "?") {
		sep = "&"
	}
	callbackURL := fmt.Sprintf("%s%samount=%d", meta.Callback, sep, amountMsat)
	if memo != "" {
		callbackURL += "&comment=" + url.QueryEscape(memo)
	}

	var cb lnurlPayCallbackResponse
	if err := fetchJSON(ctx, r.httpClient, callbackURL, &cb); err != nil {
		return "", fmt.Errorf("lnurl: fetch invoice for %q: %w", address, err)
	}
	if cb.Status == "ERROR" {
		return "", fmt.Errorf("lnurl: %q rejected payment request: %s", address, cb.Reason)
	}
	if cb.PR == "" {
		return "", fmt.Errorf("lnurl: %q returned no invoice", address)
	}

	return cb.PR, nil
}

func splitAddress(address string) (user, domain string, err error) {
	parts := strings.SplitN(address, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid lightning address %q", address)
	}
	return parts[0], parts[1], nil
}

// fetchJSON makes an HTTP GET request and decodes the JSON response
// into target.
func fetchJSON(ctx context.Context, client *http.Client, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("lnurl fetch failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error("lnurl endpoint returned error", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		logger.Error("lnurl response decode failed", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("parse response: %w", err)
	}

	return nil
}
