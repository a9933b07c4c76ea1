package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/vastra/config"
	httpclient "github.com/shashiranjanraj/vastra/pkg/http"
	"github.com/shashiranjanraj/vastra/pkg/metrics"
)

// webhookTolerance bounds how old a signed webhook timestamp may be before
// it is rejected as a possible replay.
const webhookTolerance = 5 * time.Minute

// Stripe is the synchronous-intent adapter. CreateIntent hands the client a
// secret it can use to collect the card directly; settlement arrives later
// on the webhook. ConfirmIntent is a plain status read used as a fallback
// when no webhook has landed yet.
type Stripe struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	now           func() time.Time
}

// NewStripe builds the adapter from configuration.
func NewStripe() *Stripe {
	return &Stripe{
		baseURL:       strings.TrimRight(config.StripeBaseURL(), "/"),
		secretKey:     config.StripeSecretKey(),
		webhookSecret: config.StripeWebhookSecret(),
		now:           time.Now,
	}
}

func (s *Stripe) Name() string     { return "stripe" }
func (s *Stripe) Currency() string { return "usd" }

// intentPayload is the subset of the payment_intent object we read.
type intentPayload struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Metadata     map[string]string `json:"metadata"`
	LatestCharge string            `json:"latest_charge"`
}

// CreateIntent registers a payment intent. The amount is converted to the
// smallest currency unit as the API requires.
func (s *Stripe) CreateIntent(ctx context.Context, amount decimal.Decimal, metadata map[string]string) (IntentResult, error) {
	defer metrics.ObserveProvider(s.Name(), "create_intent", time.Now())

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount.Shift(2).IntPart(), 10))
	form.Set("currency", s.Currency())
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	resp, err := httpclient.Post(s.baseURL+"/v1/payment_intents").
		WithContext(ctx).
		Bearer(s.secretKey).
		Header("Content-Type", "application/x-www-form-urlencoded").
		Body(form.Encode()).
		Retry(3, 500*time.Millisecond).
		Send()
	if err != nil {
		return IntentResult{}, newError(s.Name(), "create_intent", "request failed", 0, err)
	}
	if !resp.OK() {
		return IntentResult{}, newError(s.Name(), "create_intent", apiErrorMessage(resp.Raw), resp.StatusCode, nil)
	}

	var intent intentPayload
	if err := resp.JSON(&intent); err != nil {
		return IntentResult{}, newError(s.Name(), "create_intent", "malformed response", resp.StatusCode, err)
	}

	return IntentResult{
		ProviderRef:  intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       intent.Status,
		Raw:          resp.Text(),
	}, nil
}

// ConfirmIntent reads the intent's current status. It never mutates
// anything at the provider.
func (s *Stripe) ConfirmIntent(ctx context.Context, providerRef string) (ConfirmResult, error) {
	defer metrics.ObserveProvider(s.Name(), "confirm_intent", time.Now())

	resp, err := httpclient.Get(s.baseURL+"/v1/payment_intents/"+url.PathEscape(providerRef)).
		WithContext(ctx).
		Bearer(s.secretKey).
		Retry(3, 500*time.Millisecond).
		Send()
	if err != nil {
		return ConfirmResult{}, newError(s.Name(), "confirm_intent", "request failed", 0, err)
	}
	if !resp.OK() {
		return ConfirmResult{}, newError(s.Name(), "confirm_intent", apiErrorMessage(resp.Raw), resp.StatusCode, nil)
	}

	var intent intentPayload
	if err := resp.JSON(&intent); err != nil {
		return ConfirmResult{}, newError(s.Name(), "confirm_intent", "malformed response", resp.StatusCode, err)
	}

	return ConfirmResult{
		ProviderRef:   intent.ID,
		Outcome:       mapIntentStatus(intent.Status),
		TransactionID: intent.ID,
		OrderID:       intent.Metadata["order_id"],
		Raw:           resp.Text(),
	}, nil
}

func mapIntentStatus(status string) Outcome {
	switch status {
	case "succeeded":
		return OutcomeSucceeded
	case "canceled":
		return OutcomeFailed
	default:
		// requires_payment_method, requires_confirmation, requires_action,
		// processing — the intent is still in flight.
		return OutcomePending
	}
}

// VerifyWebhook checks the Stripe-Signature header. The signed content is
// "<timestamp>.<body>" and the signature is hex(hmac-sha256(secret, content)).
func (s *Stripe) VerifyWebhook(header http.Header, body []byte) (WebhookEvent, error) {
	ts, sigs, err := parseSignatureHeader(header.Get("Stripe-Signature"))
	if err != nil {
		return WebhookEvent{}, ErrSignatureInvalid
	}
	if s.now().Sub(time.Unix(ts, 0)) > webhookTolerance {
		return WebhookEvent{}, ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := mac.Sum(nil)

	valid := false
	for _, sig := range sigs {
		raw, err := hex.DecodeString(sig)
		if err == nil && hmac.Equal(raw, expected) {
			valid = true
			break
		}
	}
	if !valid {
		return WebhookEvent{}, ErrSignatureInvalid
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object intentPayload `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrEventMalformed, err)
	}

	outcome := OutcomePending
	switch event.Type {
	case "payment_intent.succeeded":
		outcome = OutcomeSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		outcome = OutcomeFailed
	}

	return WebhookEvent{
		Provider:      s.Name(),
		ProviderRef:   event.Data.Object.ID,
		OrderID:       event.Data.Object.Metadata["order_id"],
		Outcome:       outcome,
		TransactionID: event.Data.Object.ID,
		Raw:           body,
	}, nil
}

// parseSignatureHeader splits "t=1700000000,v1=abc,v1=def" into the
// timestamp and candidate signatures.
func parseSignatureHeader(header string) (int64, []string, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("missing signature header")
	}

	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("bad timestamp: %w", err)
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, value)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return 0, nil, fmt.Errorf("incomplete signature header")
	}
	return ts, sigs, nil
}

// apiErrorMessage pulls the human-readable message out of an API error
// body, falling back to a generic string.
func apiErrorMessage(raw []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return "provider rejected the request"
}
