package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "github.com/shashiranjanraj/vastra/pkg/http"
	"github.com/shashiranjanraj/vastra/pkg/testkit"
)

func newTestStripe(now time.Time) *Stripe {
	return &Stripe{
		baseURL:       "https://api.stripe.test",
		secretKey:     "sk_test_abc",
		webhookSecret: "whsec_test",
		now:           func() time.Time { return now },
	}
}

func useTransport(t *testing.T, mt *testkit.MockTransport) {
	t.Helper()
	httpclient.DefaultClient.Transport = mt
	t.Cleanup(httpclient.ResetTransport)
}

func TestStripeCreateIntent(t *testing.T) {
	mt := testkit.NewMockTransport().
		Stub("POST", "https://api.stripe.test/v1/payment_intents", 200,
			`{"id":"pi_123","status":"requires_payment_method","client_secret":"pi_123_secret_x"}`)
	useTransport(t, mt)

	s := newTestStripe(time.Now())
	result, err := s.CreateIntent(context.Background(), decimal.RequireFromString("100.00"),
		map[string]string{"order_id": "ord-1"})
	require.NoError(t, err)

	assert.Equal(t, "pi_123", result.ProviderRef)
	assert.Equal(t, "pi_123_secret_x", result.ClientSecret)
	assert.Empty(t, result.RedirectURL)
	assert.NotEmpty(t, result.Raw)

	require.Len(t, mt.Requests, 1)
	req := mt.Requests[0]
	assert.Equal(t, "Bearer sk_test_abc", req.Header.Get("Authorization"))
	assert.Equal(t, "application/x-www-form-urlencoded", req.Header.Get("Content-Type"))

	form, err := url.ParseQuery(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "10000", form.Get("amount"), "amount must be in the smallest currency unit")
	assert.Equal(t, "usd", form.Get("currency"))
	assert.Equal(t, "ord-1", form.Get("metadata[order_id]"))
}

func TestStripeCreateIntentProviderRejection(t *testing.T) {
	mt := testkit.NewMockTransport().
		Stub("POST", "https://api.stripe.test/v1/payment_intents", 402,
			`{"error":{"message":"Your card was declined."}}`)
	useTransport(t, mt)

	s := newTestStripe(time.Now())
	_, err := s.CreateIntent(context.Background(), decimal.RequireFromString("10.00"), nil)

	var provErr *Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "stripe", provErr.Provider)
	assert.Equal(t, 402, provErr.Status)
	assert.Contains(t, provErr.Message, "declined")
}

func TestStripeConfirmIntentOutcomeMapping(t *testing.T) {
	cases := []struct {
		status string
		want   Outcome
	}{
		{"succeeded", OutcomeSucceeded},
		{"canceled", OutcomeFailed},
		{"processing", OutcomePending},
		{"requires_payment_method", OutcomePending},
	}

	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			mt := testkit.NewMockTransport().
				Stub("GET", "https://api.stripe.test/v1/payment_intents/pi_9", 200,
					fmt.Sprintf(`{"id":"pi_9","status":%q,"metadata":{"order_id":"ord-9"}}`, tc.status))
			useTransport(t, mt)

			s := newTestStripe(time.Now())
			result, err := s.ConfirmIntent(context.Background(), "pi_9")
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Outcome)
			assert.Equal(t, "ord-9", result.OrderID)
			assert.Equal(t, "pi_9", result.TransactionID)
		})
	}
}

func signStripe(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestStripeVerifyWebhook(t *testing.T) {
	now := time.Now()
	s := newTestStripe(now)
	body := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_7","status":"succeeded","metadata":{"order_id":"ord-7"}}}}`)

	header := http.Header{}
	header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", now.Unix(), signStripe("whsec_test", now.Unix(), body)))

	ev, err := s.VerifyWebhook(header, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, ev.Outcome)
	assert.Equal(t, "pi_7", ev.ProviderRef)
	assert.Equal(t, "ord-7", ev.OrderID)
}

func TestStripeVerifyWebhookMalformedBodyAfterValidSignature(t *testing.T) {
	now := time.Now()
	s := newTestStripe(now)
	body := []byte(`{"type": not json`)

	header := http.Header{}
	header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", now.Unix(), signStripe("whsec_test", now.Unix(), body)))

	_, err := s.VerifyWebhook(header, body)
	assert.ErrorIs(t, err, ErrEventMalformed)
}

func TestStripeVerifyWebhookRejectsBadSignature(t *testing.T) {
	now := time.Now()
	s := newTestStripe(now)
	body := []byte(`{"type":"payment_intent.succeeded"}`)

	header := http.Header{}
	header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", now.Unix(), signStripe("wrong-secret", now.Unix(), body)))

	_, err := s.VerifyWebhook(header, body)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestStripeVerifyWebhookRejectsStaleTimestamp(t *testing.T) {
	now := time.Now()
	s := newTestStripe(now)
	body := []byte(`{"type":"payment_intent.succeeded"}`)
	old := now.Add(-10 * time.Minute).Unix()

	header := http.Header{}
	header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", old, signStripe("whsec_test", old, body)))

	_, err := s.VerifyWebhook(header, body)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestStripeVerifyWebhookRejectsMissingHeader(t *testing.T) {
	s := newTestStripe(time.Now())
	_, err := s.VerifyWebhook(http.Header{}, []byte(`{}`))
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestStripeVerifyWebhookFailedEvent(t *testing.T) {
	now := time.Now()
	s := newTestStripe(now)
	body := []byte(`{"type":"payment_intent.payment_failed","data":{"object":{"id":"pi_8","metadata":{"order_id":"ord-8"}}}}`)

	header := http.Header{}
	header.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", now.Unix(), signStripe("whsec_test", now.Unix(), body)))

	ev, err := s.VerifyWebhook(header, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, ev.Outcome)
}
