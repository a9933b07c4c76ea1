// Package payment contains the provider adapters. Each adapter hides one
// payment network's request and response shapes behind the Provider
// interface; the reconciliation engine never branches on provider names.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// ErrSignatureInvalid is returned by VerifyWebhook when the notification's
// signature is missing, malformed, stale or does not match the body.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// ErrEventMalformed is returned by VerifyWebhook when the signature checks
// out but the body does not parse as an event. The delivery system is told
// the request itself is bad, not that our side failed.
var ErrEventMalformed = errors.New("webhook event malformed")

// Outcome is the provider-neutral settlement state of an intent.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

// IntentResult is what CreateIntent hands back to the orchestrator. Exactly
// one of ClientSecret and RedirectURL is set, depending on how the provider
// collects the payment.
type IntentResult struct {
	ProviderRef  string
	ClientSecret string
	RedirectURL  string
	Status       string
	Raw          string
}

// ConfirmResult reports the current (or, for execute-style providers, the
// just-settled) state of an intent.
type ConfirmResult struct {
	ProviderRef   string
	Outcome       Outcome
	TransactionID string
	OrderID       string
	Raw           string
}

// WebhookEvent is a verified, parsed provider notification.
type WebhookEvent struct {
	Provider      string
	ProviderRef   string
	OrderID       string
	Outcome       Outcome
	TransactionID string
	Raw           []byte
}

// Provider is the capability surface the engine requires of every payment
// network. Adding a provider means implementing this interface; nothing
// else in the codebase changes.
type Provider interface {
	// Name is the stable tag stored on orders and ledger rows.
	Name() string

	// Currency is the provider's native settlement currency.
	Currency() string

	// CreateIntent registers a payment attempt with the provider. It makes
	// the remote call only; persisting the attempt is the caller's job.
	CreateIntent(ctx context.Context, amount decimal.Decimal, metadata map[string]string) (IntentResult, error)

	// ConfirmIntent reads or settles the intent identified by providerRef.
	// For some providers this is the settlement act itself, not a read.
	ConfirmIntent(ctx context.Context, providerRef string) (ConfirmResult, error)

	// VerifyWebhook authenticates a pushed notification and extracts the
	// event. An invalid signature returns ErrSignatureInvalid without
	// parsing the body further.
	VerifyWebhook(header http.Header, body []byte) (WebhookEvent, error)
}

// Error wraps any transport failure, non-success status or
// provider-reported rejection. Internals are logged server-side; clients
// only ever see a generic message.
type Error struct {
	Provider string
	Op       string
	Message  string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(provider, op, message string, status int, err error) *Error {
	return &Error{Provider: provider, Op: op, Message: message, Status: status, Err: err}
}
