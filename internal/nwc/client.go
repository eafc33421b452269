// Package nwc speaks NIP-47 (Nostr Wallet Connect) over a relay
// websocket to ask a remote wallet to mint an invoice.
package nwc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// makeInvoiceRequest is the NIP-47 "make_invoice" method body.
type makeInvoiceRequest struct {
	Method string `json:"method"`
	Params struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	} `json:"params"`
}

// makeInvoiceResult is the NIP-47 response body for make_invoice.
type makeInvoiceResult struct {
	ResultType string `json:"result_type"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Result *struct {
		Invoice string `json:"invoice"`
	} `json:"result"`
}

// Client is a NIP-47 client: one websocket connection per call, torn
// down once the correlated response arrives or the timeout fires.
// Correlation uses a read loop that matches the reply's e-tag against
// the request event ID and hands its content over a one-slot channel,
// and a select with time.After for the timeout.
type Client struct {
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a Client with the given per-call timeout.
func New(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{timeout: timeout, logger: logger}
}

// MakeInvoice opens uri's relay, issues a NIP-47 make_invoice request
// for amountMsat millisats with memo as the description, and returns
// the resulting bolt11 invoice.
func (c *Client) MakeInvoice(ctx context.Context, uri string, amountMsat int64, memo string) (string, error) {
	conn, err := parseURI(uri)
	if err != nil {
		return "", err
	}

	req := makeInvoiceRequest{Method: "make_invoice"}
	req.Params.Amount = amountMsat
	req.Params.Description = memo

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("nwc: marshal request: %w", err)
	}

	event, err := buildRequestEvent(conn.clientSecretHex, conn.walletPubkeyHex, payload)
	if err != nil {
		return "", err
	}

	respContent, err := c.roundTrip(ctx, conn, event)
	if err != nil {
		return "", err
	}

	plaintext, err := decryptResponse(conn.clientSecretHex, conn.walletPubkeyHex, respContent)
	if err != nil {
		return "", fmt.Errorf("nwc: decrypt response: %w", err)
	}

	var result makeInvoiceResult
	if err := json.Unmarshal(plaintext, &result); err != nil {
		return "", fmt.Errorf("nwc: parse response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("nwc: wallet returned error %s: %s", result.Error.Code, result.Error.Message)
	}
	if result.Result == nil || result.Result.Invoice == "" {
		return "", fmt.Errorf("nwc: wallet returned no invoice")
	}

	return result.Result.Invoice, nil
}

// roundTrip dials the relay, publishes the signed request event,
// subscribes for the wallet's reply addressed back to it, and blocks
// until the matching kind-23195 event arrives or the call times out.
func (c *Client) roundTrip(ctx context.Context, conn connection, event *nostrEvent) (string, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, conn.relayURL, nil)
	if err != nil {
		return "", fmt.Errorf("nwc: dial relay %s: %w", conn.relayURL, err)
	}
	defer ws.Close()

	pending := make(chan string, 1)
	var once sync.Once
	done := make(chan struct{})
	go c.readLoop(ws, event.ID, pending, done, &once)
	defer close(done)

	subID := event.ID[:16]
	if err := ws.WriteJSON([]interface{}{"EVENT", event}); err != nil {
		return "", fmt.Errorf("nwc: publish request event: %w", err)
	}
	if err := ws.WriteJSON([]interface{}{"REQ", subID, map[string]interface{}{
		"kinds": []int{kindResult},
		"#e":    []string{event.ID},
	}}); err != nil {
		return "", fmt.Errorf("nwc: subscribe for response: %w", err)
	}

	select {
	case content := <-pending:
		return content, nil
	case <-time.After(c.timeout):
		return "", fmt.Errorf("nwc: request timed out after %s", c.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// readLoop reads relay frames until it finds an EVENT message whose
// e-tag matches requestID, then publishes its content and stops.
func (c *Client) readLoop(ws *websocket.Conn, requestID string, pending chan<- string, done <-chan struct{}, once *sync.Once) {
	for {
		select {
		case <-done:
			return
		default:
		}

		var raw []json.RawMessage
		if err := ws.ReadJSON(&raw); err != nil {
			if c.logger != nil {
				c.logger.Debug("nwc relay read ended", zap.Error(err))
			}
			return
		}
		if len(raw) < 3 {
			continue
		}

		var msgType string
		if err := json.Unmarshal(raw[0], &msgType); err != nil || msgType != "EVENT" {
			continue
		}

		var ev nostrEvent
		if err := json.Unmarshal(raw[2], &ev); err != nil {
			continue
		}
		if ev.Kind != kindResult || !hasTag(ev.Tags, "e", requestID) {
			continue
		}

		once.Do(func() { pending <- ev.Content })
		return
	}
}

func hasTag(tags [][]string, key, value string) bool {
	for _, t := range tags {
		if len(t) >= 2 && t[0] == key && t[1] == value {
			return true
		}
	}
	return false
}
