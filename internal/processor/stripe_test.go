package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
)

func useStripeBackend(t *testing.T, handler http.HandlerFunc) {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(ts.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	stripe.SetBackend(stripe.APIBackend, backend)
	t.Cleanup(func() { stripe.SetBackend(stripe.APIBackend, nil) })
}

func TestStripeIssuePayout(t *testing.T) {
	useStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		assert.Equal(t, "payout-p1-2025-W02", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "3000", r.PostForm.Get("amount"))
		assert.Equal(t, "acct_1", r.PostForm.Get("destination"))
		assert.Equal(t, "payout-p1-2025-W02", r.PostForm.Get("transfer_group"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"tr_123","object":"transfer","amount":3000}`))
	})

	client, err := NewStripeClient("sk_test_123", "USD")
	require.NoError(t, err)

	id, err := client.IssuePayout(context.Background(), "acct_1", 3000, "payout-p1-2025-W02")
	require.NoError(t, err)
	assert.Equal(t, "tr_123", id)
}

func TestStripeIssueRefund_UsesChargeForChargeRefs(t *testing.T) {
	useStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ch_1", r.PostForm.Get("charge"))
		assert.Empty(t, r.PostForm.Get("payment_intent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_1","object":"refund"}`))
	})

	client, err := NewStripeClient("sk_test_123", "usd")
	require.NoError(t, err)

	id, err := client.IssueRefund(context.Background(), "ch_1", 500, "refund-o1-500")
	require.NoError(t, err)
	assert.Equal(t, "re_1", id)
}

func TestStripeFindPayout(t *testing.T) {
	useStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("transfer_group") == "known" {
			_, _ = w.Write([]byte(`{"object":"list","url":"/v1/transfers","has_more":false,
				"data":[{"id":"tr_9","object":"transfer","reversed":false}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","url":"/v1/transfers","has_more":false,"data":[]}`))
	})

	client, err := NewStripeClient("sk_test_123", "usd")
	require.NoError(t, err)

	id, found, err := client.FindPayout(context.Background(), "known")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "tr_9", id)

	_, found, err = client.FindPayout(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClassifyStripeError(t *testing.T) {
	rejected := classifyStripeError(&stripe.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "insufficient funds"})
	assert.ErrorIs(t, rejected, ErrRejected)
	assert.Contains(t, rejected.Error(), "insufficient funds")

	serverSide := classifyStripeError(&stripe.Error{HTTPStatusCode: http.StatusInternalServerError})
	assert.ErrorIs(t, serverSide, ErrOutcomeUnknown)

	network := classifyStripeError(errors.New("connection reset by peer"))
	assert.ErrorIs(t, network, ErrOutcomeUnknown)
}

func TestNewStripeClient_RequiresKey(t *testing.T) {
	_, err := NewStripeClient("  ", "usd")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
