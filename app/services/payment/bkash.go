package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/vastra/config"
	httpclient "github.com/shashiranjanraj/vastra/pkg/http"
	"github.com/shashiranjanraj/vastra/pkg/metrics"
)

// Bkash is the execute-after-redirect adapter. CreateIntent returns a URL
// the user is redirected to; after they authorize there, ConfirmIntent
// (the execute call) is the only act that settles the payment. The webhook
// is informational for this provider, never authoritative.
//
// The grant token is fetched fresh on every call rather than cached. Tokens
// are short-lived and the extra round trip is cheap next to the checkout
// itself; caching would add invalidation state for no visible win.
type Bkash struct {
	baseURL       string
	appKey        string
	appSecret     string
	username      string
	password      string
	webhookSecret string
	callbackURL   string
	payerRef      string
	now           func() time.Time
}

// NewBkash builds the adapter from configuration.
func NewBkash() *Bkash {
	return &Bkash{
		baseURL:       strings.TrimRight(config.BkashBaseURL(), "/"),
		appKey:        config.BkashAppKey(),
		appSecret:     config.BkashAppSecret(),
		username:      config.BkashUsername(),
		password:      config.BkashPassword(),
		webhookSecret: config.BkashWebhookSecret(),
		callbackURL:   config.BkashCallbackURL(),
		payerRef:      config.BkashPayerReference(),
		now:           time.Now,
	}
}

func (b *Bkash) Name() string     { return "bkash" }
func (b *Bkash) Currency() string { return "BDT" }

// grantToken exchanges the app credentials for a short-lived id token.
func (b *Bkash) grantToken(ctx context.Context) (string, error) {
	resp, err := httpclient.Post(b.baseURL+"/tokenized/checkout/token/grant").
		WithContext(ctx).
		Headers(map[string]string{
			"Accept":   "application/json",
			"username": b.username,
			"password": b.password,
		}).
		Body(map[string]string{
			"app_key":    b.appKey,
			"app_secret": b.appSecret,
		}).
		Retry(3, 500*time.Millisecond).
		Send()
	if err != nil {
		return "", newError(b.Name(), "token_grant", "request failed", 0, err)
	}
	if !resp.OK() {
		return "", newError(b.Name(), "token_grant", "provider rejected credentials", resp.StatusCode, nil)
	}

	var grant struct {
		IDToken string `json:"id_token"`
	}
	if err := resp.JSON(&grant); err != nil || grant.IDToken == "" {
		return "", newError(b.Name(), "token_grant", "no token in response", resp.StatusCode, err)
	}
	return grant.IDToken, nil
}

// invoiceNumber derives the merchant invoice for one create attempt. The
// nanosecond suffix keeps retried attempts for the same order from
// colliding at the provider with a duplicate-invoice rejection.
func (b *Bkash) invoiceNumber(orderID string) string {
	return fmt.Sprintf("%s_%d", orderID, b.now().UnixNano())
}

// orderIDFromInvoice recovers the order identity from an invoice number.
func orderIDFromInvoice(invoice string) string {
	if i := strings.LastIndex(invoice, "_"); i > 0 {
		return invoice[:i]
	}
	return invoice
}

// CreateIntent grants a token and registers a checkout, returning the URL
// the user must be redirected to.
func (b *Bkash) CreateIntent(ctx context.Context, amount decimal.Decimal, metadata map[string]string) (IntentResult, error) {
	defer metrics.ObserveProvider(b.Name(), "create_intent", time.Now())

	token, err := b.grantToken(ctx)
	if err != nil {
		return IntentResult{}, err
	}

	resp, err := httpclient.Post(b.baseURL+"/tokenized/checkout/create").
		WithContext(ctx).
		Headers(map[string]string{
			"Authorization": token,
			"X-APP-Key":     b.appKey,
		}).
		Body(map[string]string{
			"mode":                  "0011",
			"payerReference":        b.payerRef,
			"callbackURL":           b.callbackURL,
			"amount":                amount.StringFixed(2),
			"currency":              b.Currency(),
			"intent":                "sale",
			"merchantInvoiceNumber": b.invoiceNumber(metadata["order_id"]),
		}).
		Send()
	if err != nil {
		return IntentResult{}, newError(b.Name(), "create_intent", "request failed", 0, err)
	}
	if !resp.OK() {
		return IntentResult{}, newError(b.Name(), "create_intent", "provider rejected the request", resp.StatusCode, nil)
	}

	var created struct {
		StatusCode    string `json:"statusCode"`
		StatusMessage string `json:"statusMessage"`
		PaymentID     string `json:"paymentID"`
		BkashURL      string `json:"bkashURL"`
	}
	if err := resp.JSON(&created); err != nil {
		return IntentResult{}, newError(b.Name(), "create_intent", "malformed response", resp.StatusCode, err)
	}
	if created.StatusCode != "0000" {
		return IntentResult{}, newError(b.Name(), "create_intent", created.StatusMessage, resp.StatusCode, nil)
	}

	return IntentResult{
		ProviderRef: created.PaymentID,
		RedirectURL: created.BkashURL,
		Status:      "pending",
		Raw:         resp.Text(),
	}, nil
}

// ConfirmIntent executes the payment the user has authorized. This is the
// settlement act itself; the money moves here or not at all.
func (b *Bkash) ConfirmIntent(ctx context.Context, providerRef string) (ConfirmResult, error) {
	defer metrics.ObserveProvider(b.Name(), "confirm_intent", time.Now())

	token, err := b.grantToken(ctx)
	if err != nil {
		return ConfirmResult{}, err
	}

	resp, err := httpclient.Post(b.baseURL+"/tokenized/checkout/execute").
		WithContext(ctx).
		Headers(map[string]string{
			"Authorization": token,
			"X-APP-Key":     b.appKey,
		}).
		Body(map[string]string{"paymentID": providerRef}).
		Send()
	if err != nil {
		return ConfirmResult{}, newError(b.Name(), "confirm_intent", "request failed", 0, err)
	}
	if !resp.OK() {
		return ConfirmResult{}, newError(b.Name(), "confirm_intent", "provider rejected the request", resp.StatusCode, nil)
	}

	var executed struct {
		StatusCode            string `json:"statusCode"`
		StatusMessage         string `json:"statusMessage"`
		PaymentID             string `json:"paymentID"`
		TrxID                 string `json:"trxID"`
		TransactionStatus     string `json:"transactionStatus"`
		MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
	}
	if err := resp.JSON(&executed); err != nil {
		return ConfirmResult{}, newError(b.Name(), "confirm_intent", "malformed response", resp.StatusCode, err)
	}
	if executed.StatusCode != "0000" {
		return ConfirmResult{}, newError(b.Name(), "confirm_intent", executed.StatusMessage, resp.StatusCode, nil)
	}

	return ConfirmResult{
		ProviderRef:   executed.PaymentID,
		Outcome:       OutcomeSucceeded,
		TransactionID: executed.TrxID,
		OrderID:       orderIDFromInvoice(executed.MerchantInvoiceNumber),
		Raw:           resp.Text(),
	}, nil
}

// VerifyWebhook authenticates a pushed notification with an HMAC over the
// raw body carried in the X-Signature header.
func (b *Bkash) VerifyWebhook(header http.Header, body []byte) (WebhookEvent, error) {
	sig, err := hex.DecodeString(header.Get("X-Signature"))
	if err != nil || len(sig) == 0 {
		return WebhookEvent{}, ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(b.webhookSecret))
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return WebhookEvent{}, ErrSignatureInvalid
	}

	var event struct {
		PaymentID             string `json:"paymentID"`
		TrxID                 string `json:"trxID"`
		TransactionStatus     string `json:"transactionStatus"`
		MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrEventMalformed, err)
	}

	// Execute is the settlement path. A "Completed" push for this provider
	// is still treated as pending so the engine waits for the execute
	// result instead of trusting the push.
	outcome := OutcomePending
	if event.TransactionStatus == "Failed" || event.TransactionStatus == "Cancelled" {
		outcome = OutcomeFailed
	}

	return WebhookEvent{
		Provider:      b.Name(),
		ProviderRef:   event.PaymentID,
		OrderID:       orderIDFromInvoice(event.MerchantInvoiceNumber),
		Outcome:       outcome,
		TransactionID: event.TrxID,
		Raw:           body,
	}, nil
}
