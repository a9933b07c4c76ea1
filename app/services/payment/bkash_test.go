package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/vastra/pkg/testkit"
)

func newTestBkash(now func() time.Time) *Bkash {
	return &Bkash{
		baseURL:       "https://bkash.test",
		appKey:        "app-key",
		appSecret:     "app-secret",
		username:      "sandbox",
		password:      "sandbox-pass",
		webhookSecret: "bkash-webhook-secret",
		callbackURL:   "https://shop.test/payment/bkash/callback",
		payerRef:      "01711111111",
		now:           now,
	}
}

func stubBkashGrant(mt *testkit.MockTransport) *testkit.MockTransport {
	return mt.Stub("POST", "https://bkash.test/tokenized/checkout/token/grant", 200,
		`{"id_token":"tok_1","token_type":"Bearer","expires_in":3600}`)
}

func TestBkashCreateIntent(t *testing.T) {
	mt := stubBkashGrant(testkit.NewMockTransport()).
		Stub("POST", "https://bkash.test/tokenized/checkout/create", 200,
			`{"statusCode":"0000","statusMessage":"Successful","paymentID":"TR0011abc","bkashURL":"https://bkash.test/redirect/TR0011abc"}`)
	useTransport(t, mt)

	b := newTestBkash(time.Now)
	result, err := b.CreateIntent(context.Background(), decimal.RequireFromString("250.50"),
		map[string]string{"order_id": "ord-42"})
	require.NoError(t, err)

	assert.Equal(t, "TR0011abc", result.ProviderRef)
	assert.Equal(t, "https://bkash.test/redirect/TR0011abc", result.RedirectURL)
	assert.Empty(t, result.ClientSecret)

	// Grant then create.
	require.Len(t, mt.Requests, 2)
	grant := mt.Requests[0]
	assert.Equal(t, "sandbox", grant.Header.Get("username"))

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(mt.Requests[1].Body), &payload))
	assert.Equal(t, "250.50", payload["amount"])
	assert.Equal(t, "BDT", payload["currency"])
	assert.Equal(t, "sale", payload["intent"])
	assert.Equal(t, "tok_1", mt.Requests[1].Header.Get("Authorization"))
}

// A retried create for the same order must derive a different invoice
// number, or the provider rejects it as a duplicate.
func TestBkashRetriedCreateUsesDistinctInvoices(t *testing.T) {
	mt := stubBkashGrant(testkit.NewMockTransport()).
		Stub("POST", "https://bkash.test/tokenized/checkout/create", 200,
			`{"statusCode":"0000","statusMessage":"Successful","paymentID":"TR1","bkashURL":"https://bkash.test/r/1"}`)
	useTransport(t, mt)

	clock := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	b := newTestBkash(func() time.Time {
		clock = clock.Add(time.Nanosecond)
		return clock
	})

	for i := 0; i < 2; i++ {
		_, err := b.CreateIntent(context.Background(), decimal.RequireFromString("99.00"),
			map[string]string{"order_id": "ord-7"})
		require.NoError(t, err)
	}

	invoices := map[string]bool{}
	for _, req := range mt.Requests {
		var payload map[string]string
		if json.Unmarshal([]byte(req.Body), &payload) == nil {
			if inv := payload["merchantInvoiceNumber"]; inv != "" {
				invoices[inv] = true
			}
		}
	}
	assert.Len(t, invoices, 2, "each attempt needs its own invoice number")
	for inv := range invoices {
		assert.Equal(t, "ord-7", orderIDFromInvoice(inv))
	}
}

func TestBkashCreateIntentRejection(t *testing.T) {
	mt := stubBkashGrant(testkit.NewMockTransport()).
		Stub("POST", "https://bkash.test/tokenized/checkout/create", 200,
			`{"statusCode":"2054","statusMessage":"Invalid amount"}`)
	useTransport(t, mt)

	b := newTestBkash(time.Now)
	_, err := b.CreateIntent(context.Background(), decimal.RequireFromString("0.00"), nil)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "bkash", provErr.Provider)
	assert.Equal(t, "Invalid amount", provErr.Message)
}

func TestBkashConfirmIntentExecutes(t *testing.T) {
	mt := stubBkashGrant(testkit.NewMockTransport()).
		Stub("POST", "https://bkash.test/tokenized/checkout/execute", 200,
			`{"statusCode":"0000","statusMessage":"Successful","paymentID":"TR9","trxID":"8XJ4A2B1","transactionStatus":"Completed","merchantInvoiceNumber":"ord-9_1736510400000000000"}`)
	useTransport(t, mt)

	b := newTestBkash(time.Now)
	result, err := b.ConfirmIntent(context.Background(), "TR9")
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	assert.Equal(t, "8XJ4A2B1", result.TransactionID)
	assert.Equal(t, "ord-9", result.OrderID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(mt.Requests[1].Body), &payload))
	assert.Equal(t, "TR9", payload["paymentID"])
}

// Each call fetches a fresh grant token; nothing is cached between calls.
func TestBkashTokenPerCall(t *testing.T) {
	mt := stubBkashGrant(testkit.NewMockTransport()).
		Stub("POST", "https://bkash.test/tokenized/checkout/execute", 200,
			`{"statusCode":"0000","paymentID":"TR1","trxID":"T1","merchantInvoiceNumber":"o_1"}`)
	useTransport(t, mt)

	b := newTestBkash(time.Now)
	for i := 0; i < 3; i++ {
		_, err := b.ConfirmIntent(context.Background(), "TR1")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, mt.Calls("POST", "https://bkash.test/tokenized/checkout/token/grant"))
}

func signBkash(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestBkashVerifyWebhook(t *testing.T) {
	b := newTestBkash(time.Now)
	body := []byte(`{"paymentID":"TR5","trxID":"9KL2","transactionStatus":"Failed","merchantInvoiceNumber":"ord-5_1736510400"}`)

	header := http.Header{}
	header.Set("X-Signature", signBkash("bkash-webhook-secret", body))

	ev, err := b.VerifyWebhook(header, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, ev.Outcome)
	assert.Equal(t, "TR5", ev.ProviderRef)
	assert.Equal(t, "ord-5", ev.OrderID)
}

// "Completed" pushes stay pending: execute is the settlement authority for
// this provider, never the webhook.
func TestBkashWebhookCompletedIsNotAuthoritative(t *testing.T) {
	b := newTestBkash(time.Now)
	body := []byte(`{"paymentID":"TR6","trxID":"9KL3","transactionStatus":"Completed","merchantInvoiceNumber":"ord-6_1"}`)

	header := http.Header{}
	header.Set("X-Signature", signBkash("bkash-webhook-secret", body))

	ev, err := b.VerifyWebhook(header, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, ev.Outcome)
}

func TestBkashVerifyWebhookMalformedBodyAfterValidSignature(t *testing.T) {
	b := newTestBkash(time.Now)
	body := []byte(`paymentID=TR7`)

	header := http.Header{}
	header.Set("X-Signature", signBkash("bkash-webhook-secret", body))

	_, err := b.VerifyWebhook(header, body)
	assert.ErrorIs(t, err, ErrEventMalformed)
}

func TestBkashVerifyWebhookRejectsBadSignature(t *testing.T) {
	b := newTestBkash(time.Now)
	body := []byte(`{"paymentID":"TR5"}`)

	header := http.Header{}
	header.Set("X-Signature", signBkash("wrong-secret", body))

	_, err := b.VerifyWebhook(header, body)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}
