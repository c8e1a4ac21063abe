package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuePayout_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payouts", r.URL.Path)
		assert.Equal(t, "payout-p1-2025-W02", r.Header.Get("Idempotency-Key"))

		var req payoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acct_1", req.Account)
		assert.Equal(t, int64(3000), req.AmountCents)
		assert.Equal(t, "usd", req.Currency)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(objectResponse{ID: "po_123"})
	}))
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "usd")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	id, err := client.IssuePayout(ctx, "acct_1", 3000, "payout-p1-2025-W02")
	require.NoError(t, err)
	assert.Equal(t, "po_123", id)
}

func TestIssueRefund_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		http.Error(w, "charge already refunded", http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "usd")

	_, err := client.IssueRefund(context.Background(), "pi_1", 500, "refund-o1-500")
	require.ErrorIs(t, err, ErrRejected)
	assert.False(t, IsOutcomeUnknown(err))
	assert.Contains(t, err.Error(), "charge already refunded")
}

func TestIssuePayout_TooManyRequests(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "usd")

	_, err := client.IssuePayout(context.Background(), "acct_1", 3000, "t")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "5s")
}

func TestIssuePayout_ServerErrorIsUnknown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "usd")

	_, err := client.IssuePayout(context.Background(), "acct_1", 3000, "t")
	require.ErrorIs(t, err, ErrOutcomeUnknown)
}

func TestIssuePayout_TimeoutIsUnknown(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	client := NewHTTPClient(ts.URL, "usd")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.IssuePayout(ctx, "acct_1", 3000, "t")
	require.ErrorIs(t, err, ErrOutcomeUnknown)
}

func TestFindPayout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.Query().Get("idempotency_key") == "known" {
			_ = json.NewEncoder(w).Encode(objectResponse{ID: "po_9"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "usd")

	id, found, err := client.FindPayout(context.Background(), "known")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "po_9", id)

	_, found, err = client.FindPayout(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestHTTPClient_NotConfigured(t *testing.T) {
	client := NewHTTPClient("", "usd")

	_, err := client.IssuePayout(context.Background(), "acct_1", 1, "t")
	require.ErrorIs(t, err, ErrNotConfigured)
}
