package services

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/vastra/app/models"
	"github.com/shashiranjanraj/vastra/app/repositories"
	"github.com/shashiranjanraj/vastra/app/services/payment"
	"github.com/shashiranjanraj/vastra/pkg/auth"
	"github.com/shashiranjanraj/vastra/pkg/event"
	"github.com/shashiranjanraj/vastra/pkg/logger"
	"github.com/shashiranjanraj/vastra/pkg/metrics"
	"github.com/shashiranjanraj/vastra/pkg/queue"
)

// EventPaymentUpdated is fired after a reconciliation transaction commits.
// Payload is a PaymentUpdate.
const EventPaymentUpdated = "payment.updated"

// PaymentUpdate is pushed to in-process listeners (the websocket hub) when
// an order's payment state changes.
type PaymentUpdate struct {
	OrderID       string `json:"order_id"`
	OrderStatus   string `json:"order_status"`
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// IntentResponse is what create-intent hands the client. Raw provider
// payloads never leave the service.
type IntentResponse struct {
	ProviderRef  string `json:"provider_ref"`
	Provider     string `json:"provider"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	Status       string `json:"status"`
}

// ConfirmResponse reports the reconciled state after a confirm call.
type ConfirmResponse struct {
	Status        string `json:"status"`
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// PaymentService is the intent orchestrator and reconciliation engine.
// Every payment state transition in the system goes through applyOutcome.
type PaymentService struct {
	db        *gorm.DB
	orders    *repositories.OrderRepository
	payments  *repositories.PaymentRepository
	providers map[string]payment.Provider
	fallback  string
}

// NewPaymentService wires the engine. The first provider is the default
// when a client does not name one.
func NewPaymentService(db *gorm.DB, providers ...payment.Provider) *PaymentService {
	s := &PaymentService{
		db:        db,
		orders:    repositories.NewOrderRepository(db),
		payments:  repositories.NewPaymentRepository(db),
		providers: map[string]payment.Provider{},
	}
	for i, p := range providers {
		s.providers[p.Name()] = p
		if i == 0 {
			s.fallback = p.Name()
		}
	}
	return s
}

func (s *PaymentService) provider(name string) (payment.Provider, error) {
	if name == "" {
		name = s.fallback
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// resolveOrder loads the order and enforces the two trust paths: a user
// actor must own the order (staff may see all), while a service actor acts
// on behalf of whichever user the order records.
func (s *PaymentService) resolveOrder(ctx context.Context, orderID string) (models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Order{}, ErrNotFound
		}
		return models.Order{}, err
	}

	actor, _ := auth.ActorFromCtx(ctx)
	if !actor.Service && !actor.Staff && order.UserID != actor.UserID {
		// Existence of other users' orders is not leaked.
		return models.Order{}, ErrNotFound
	}
	return order, nil
}

// CreateIntent registers a payment attempt for an order.
//
// The remote provider call happens outside any database transaction; the
// already-paid check is then repeated under the order's row lock before the
// ledger row is inserted, so a webhook landing mid-create cannot produce a
// second payable intent for a paid order.
func (s *PaymentService) CreateIntent(ctx context.Context, orderID, providerName string) (IntentResponse, error) {
	order, err := s.resolveOrder(ctx, orderID)
	if err != nil {
		return IntentResponse{}, err
	}
	if order.PaymentStatus == models.PaymentSuccess {
		return IntentResponse{}, ErrAlreadyPaid
	}

	p, err := s.provider(providerName)
	if err != nil {
		return IntentResponse{}, err
	}

	intent, err := p.CreateIntent(ctx, order.Total, map[string]string{"order_id": order.ID})
	if err != nil {
		// No partial ledger row for a failed create.
		return IntentResponse{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.orders.WithTx(tx).FindByIDLocked(ctx, order.ID)
		if err != nil {
			return err
		}
		if locked.PaymentStatus == models.PaymentSuccess {
			return ErrAlreadyPaid
		}

		ref := intent.ProviderRef
		return s.payments.WithTx(tx).Create(ctx, &models.Payment{
			OrderID:       order.ID,
			UserID:        order.UserID,
			Amount:        order.Total,
			Provider:      p.Name(),
			Status:        models.PaymentPending,
			TransactionID: &ref,
			RawResponse:   intent.Raw,
		})
	})
	if err != nil {
		return IntentResponse{}, err
	}

	logger.WithCtx(ctx).Info("payment intent created",
		"order_id", order.ID, "provider", p.Name(), "provider_ref", intent.ProviderRef)

	return IntentResponse{
		ProviderRef:  intent.ProviderRef,
		Provider:     p.Name(),
		ClientSecret: intent.ClientSecret,
		RedirectURL:  intent.RedirectURL,
		Status:       intent.Status,
	}, nil
}

// HandleWebhook verifies and reconciles a pushed provider notification.
// A signature failure mutates nothing and surfaces ErrSignatureInvalid so
// the transport layer answers 400 and the provider redelivers.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) error {
	p, err := s.provider(providerName)
	if err != nil {
		return err
	}

	ev, err := p.VerifyWebhook(header, body)
	if err != nil {
		if errors.Is(err, payment.ErrSignatureInvalid) {
			metrics.WebhookSignatureFailures.WithLabelValues(p.Name()).Inc()
			logger.WithCtx(ctx).Warn("webhook signature rejected", "provider", p.Name())
		}
		return err
	}

	s.archive(ctx, p.Name(), ev.ProviderRef, body)

	if ev.Outcome == payment.OutcomePending {
		// Informational push; nothing to reconcile yet.
		return nil
	}

	orderID := ev.OrderID
	if orderID == "" {
		row, err := s.payments.FindByProviderRef(ctx, p.Name(), ev.ProviderRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Unknown reference. Acknowledge so the provider stops
				// redelivering; there is nothing to update.
				logger.WithCtx(ctx).Warn("webhook for unknown reference",
					"provider", p.Name(), "provider_ref", ev.ProviderRef)
				return nil
			}
			return err
		}
		orderID = row.OrderID
	}

	_, err = s.applyOutcome(ctx, orderID, p.Name(), ev.ProviderRef, ev.Outcome, ev.TransactionID, string(ev.Raw))
	return err
}

// Confirm is the pull entry point. The provider tag is recovered from the
// ledger when the caller does not supply one. For execute-style providers
// this call is the settlement act; for intent-style providers it is a
// status read used when the webhook has not arrived yet.
func (s *PaymentService) Confirm(ctx context.Context, providerRef, providerName string) (ConfirmResponse, error) {
	row, err := s.payments.FindByProviderRef(ctx, coalesce(providerName, s.fallback), providerRef)
	if err == nil {
		providerName = row.Provider
	} else if providerName == "" {
		// No ledger row and no hint; try every configured provider tag.
		for name := range s.providers {
			if r, lookupErr := s.payments.FindByProviderRef(ctx, name, providerRef); lookupErr == nil {
				row, providerName = r, name
				break
			}
		}
	}

	p, err := s.provider(providerName)
	if err != nil {
		return ConfirmResponse{}, err
	}

	// When the ledger already names the order, the actor check happens
	// before the remote call: for execute-style providers ConfirmIntent is
	// the settlement act, and a caller who may not see the order must not
	// be able to trigger it.
	if row.OrderID != "" {
		if _, err := s.resolveOrder(ctx, row.OrderID); err != nil {
			return ConfirmResponse{}, err
		}
	}

	// Remote call outside any row lock.
	result, err := p.ConfirmIntent(ctx, providerRef)
	if err != nil {
		return ConfirmResponse{}, err
	}

	orderID := result.OrderID
	if orderID == "" {
		orderID = row.OrderID
	}
	if orderID == "" {
		return ConfirmResponse{}, ErrNotFound
	}

	if _, err := s.resolveOrder(ctx, orderID); err != nil {
		return ConfirmResponse{}, err
	}

	if result.Outcome == payment.OutcomePending {
		return ConfirmResponse{Status: string(payment.OutcomePending), OrderID: orderID}, nil
	}

	update, err := s.applyOutcome(ctx, orderID, p.Name(), providerRef, result.Outcome, result.TransactionID, result.Raw)
	if err != nil {
		return ConfirmResponse{}, err
	}

	return ConfirmResponse{
		Status:        update.PaymentStatus,
		OrderID:       orderID,
		TransactionID: update.TransactionID,
	}, nil
}

// applyOutcome is the single transition function both channels converge
// on. It runs with the order row locked for the whole read-modify-write, so
// a webhook and a concurrent confirm cannot both observe pending and both
// apply success; one wins, the other no-ops on the already-applied state.
//
// Success is sticky: once recorded, no later failed or pending report
// downgrades it.
func (s *PaymentService) applyOutcome(ctx context.Context, orderID, providerName, providerRef string, outcome payment.Outcome, trxID, raw string) (PaymentUpdate, error) {
	var update PaymentUpdate
	applied := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		payments := s.payments.WithTx(tx)

		order, err := orders.FindByIDLocked(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		// Step 1: redundant invocation against a settled order is a no-op
		// returning the recorded result.
		if order.PaymentStatus == models.PaymentSuccess {
			update = paymentUpdateFrom(order)
			return nil
		}

		switch outcome {
		case payment.OutcomeSucceeded:
			order.PaymentStatus = models.PaymentSuccess
			// A later manual state such as cancelled is never overridden.
			if order.Status == models.OrderPending || order.Status == models.OrderProcessing {
				order.Status = models.OrderProcessing
			}
			order.TransactionID = &trxID
			if err := orders.Save(ctx, &order); err != nil {
				return err
			}
			if err := s.settleLedger(ctx, payments, order, providerName, providerRef, models.PaymentSuccess, raw); err != nil {
				return err
			}

		case payment.OutcomeFailed:
			// A failed payment leaves the order payable by a fresh intent;
			// order.status is untouched.
			order.PaymentStatus = models.PaymentFailed
			if err := orders.Save(ctx, &order); err != nil {
				return err
			}
			if err := s.settleLedger(ctx, payments, order, providerName, providerRef, models.PaymentFailed, raw); err != nil {
				return err
			}

		case payment.OutcomePending:
			return nil
		}

		applied = true
		update = paymentUpdateFrom(order)
		return nil
	})
	if err != nil {
		return PaymentUpdate{}, err
	}

	if applied {
		metrics.PaymentOutcomes.WithLabelValues(providerName, string(outcome)).Inc()
		event.Fire(EventPaymentUpdated, update)
		logger.WithCtx(ctx).Info("payment outcome applied",
			"order_id", orderID, "provider", providerName, "outcome", string(outcome))
	}
	return update, nil
}

// settleLedger moves the ledger row for providerRef to the given status,
// creating it if the intent somehow never recorded one.
func (s *PaymentService) settleLedger(ctx context.Context, payments *repositories.PaymentRepository, order models.Order, providerName, providerRef, status, raw string) error {
	row, err := payments.FindByProviderRef(ctx, providerName, providerRef)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		ref := providerRef
		return payments.Create(ctx, &models.Payment{
			OrderID:       order.ID,
			UserID:        order.UserID,
			Amount:        order.Total,
			Provider:      providerName,
			Status:        status,
			TransactionID: &ref,
			RawResponse:   raw,
		})
	}

	row.Status = status
	row.RawResponse = raw
	return payments.Save(ctx, &row)
}

// Payments returns the ledger rows for an order the actor may see.
func (s *PaymentService) Payments(ctx context.Context, orderID string) ([]models.Payment, error) {
	if _, err := s.resolveOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.payments.ListByOrder(ctx, orderID)
}

// archive queues the raw webhook body for storage. Archiving is best
// effort and never blocks reconciliation.
func (s *PaymentService) archive(ctx context.Context, providerName, providerRef string, body []byte) {
	if err := queue.Dispatch(NewArchiveWebhookJob(providerName, providerRef, body)); err != nil {
		logger.WithCtx(ctx).Warn("webhook archive dispatch failed",
			"provider", providerName, "error", err)
	}
}

func paymentUpdateFrom(order models.Order) PaymentUpdate {
	u := PaymentUpdate{
		OrderID:       order.ID,
		OrderStatus:   order.Status,
		PaymentStatus: order.PaymentStatus,
	}
	if order.TransactionID != nil {
		u.TransactionID = *order.TransactionID
	}
	return u
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
