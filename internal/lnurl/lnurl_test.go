package lnurl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lnbroker/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
}

func TestResolveInvoice_Success(t *testing.T) {
	var callbackHit bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/.well-known/lnurlp/"):
			assert.Equal(t, "/.well-known/lnurlp/frank", r.URL.Path)
			json.NewEncoder(w).Encode(lnurlPayMetadata{
				Callback:    "http://" + r.Host + "/cb",
				MinSendable: 1000,
				MaxSendable: 100000000,
				Tag:         "payRequest",
			})
		case r.URL.Path == "/cb":
			callbackHit = true
			assert.Equal(t, "100000", r.URL.Query().Get("amount"))
			json.NewEncoder(w).Encode(lnurlPayCallbackResponse{PR: "lnbc100u1..."})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	resolver := NewWithScheme(server.Client(), "http")
	addr := "frank@" + strings.TrimPrefix(server.URL, "http://")

	bolt11, err := resolver.ResolveInvoice(context.Background(), addr, 100, "thanks")
	require.NoError(t, err)
	assert.Equal(t, "lnbc100u1...", bolt11)
	assert.True(t, callbackHit)
}

func TestResolveInvoice_AmountBelowMinSendable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(lnurlPayMetadata{
			Callback:    "http://" + r.Host + "/cb",
			MinSendable: 100000,
			MaxSendable: 100000000,
			Tag:         "payRequest",
		})
	}))
	defer server.Close()

	resolver := NewWithScheme(server.Client(), "http")
	addr := "frank@" + strings.TrimPrefix(server.URL, "http://")

	_, err := resolver.ResolveInvoice(context.Background(), addr, 1, "memo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside")
}

func TestResolveInvoice_CallbackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/.well-known/lnurlp/"):
			json.NewEncoder(w).Encode(lnurlPayMetadata{
				Callback:    "http://" + r.Host + "/cb",
				MinSendable: 1000,
				MaxSendable: 100000000,
				Tag:         "payRequest",
			})
		case r.URL.Path == "/cb":
			json.NewEncoder(w).Encode(lnurlPayCallbackResponse{Status: "ERROR", Reason: "amount too small"})
		}
	}))
	defer server.Close()

	resolver := NewWithScheme(server.Client(), "http")
	addr := "frank@" + strings.TrimPrefix(server.URL, "http://")

	_, err := resolver.ResolveInvoice(context.Background(), addr, 100, "memo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount too small")
}

func TestResolveInvoice_NotPayRequestTag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(lnurlPayMetadata{Tag: "withdrawRequest"})
	}))
	defer server.Close()

	resolver := NewWithScheme(server.Client(), "http")
	addr := "frank@" + strings.TrimPrefix(server.URL, "http://")

	_, err := resolver.ResolveInvoice(context.Background(), addr, 100, "memo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a payRequest")
}

func TestResolveInvoice_InvalidAddress(t *testing.T) {
	r := New(nil)
	_, err := r.ResolveInvoice(context.Background(), "not-an-address", 100, "memo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid lightning address")
}

func TestSplitAddress(t *testing.T) {
	user, domain, err := splitAddress("alice@npub.cash")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "npub.cash", domain)

	_, _, err = splitAddress("no-at-sign")
	assert.Error(t, err)

	_, _, err = splitAddress("@domain.com")
	assert.Error(t, err)

	_, _, err = splitAddress("user@")
	assert.Error(t, err)
}

func TestFetchJSON_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var target map[string]string
	err := fetchJSON(context.Background(), server.Client(), server.URL, &target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestFetchJSON_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	var target map[string]string
	err := fetchJSON(context.Background(), server.Client(), server.URL, &target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}
