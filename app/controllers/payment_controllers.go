// Package controllers translates HTTP requests into service calls and
// service errors into response envelopes.
package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/vastra/app/services"
	"github.com/shashiranjanraj/vastra/app/services/payment"
	"github.com/shashiranjanraj/vastra/pkg/bind"
	"github.com/shashiranjanraj/vastra/pkg/logger"
	"github.com/shashiranjanraj/vastra/pkg/response"
)

// maxWebhookBytes caps webhook bodies; provider events are small.
const maxWebhookBytes = 1 << 20

type PaymentController struct {
	service *services.PaymentService
}

func NewPaymentController(service *services.PaymentService) *PaymentController {
	return &PaymentController{service: service}
}

type createIntentInput struct {
	OrderID  string `json:"order_id" validate:"required,uuid"`
	Provider string `json:"provider" validate:"nullable,in=stripe,bkash"`
}

// CreateIntent handles POST /api/payments/create-intent.
func (c *PaymentController) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var input createIntentInput
	if errs, err := bind.JSON(r, &input); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	} else if len(errs) > 0 {
		response.ValidationError(w, errs)
		return
	}

	intent, err := c.service.CreateIntent(r.Context(), input.OrderID, input.Provider)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	response.Success(w, intent)
}

type confirmInput struct {
	ProviderRef string `json:"provider_ref" validate:"required"`
	Provider    string `json:"provider" validate:"nullable,in=stripe,bkash"`
}

// Confirm handles POST /api/payments/confirm.
func (c *PaymentController) Confirm(w http.ResponseWriter, r *http.Request) {
	var input confirmInput
	if errs, err := bind.JSON(r, &input); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	} else if len(errs) > 0 {
		response.ValidationError(w, errs)
		return
	}

	result, err := c.service.Confirm(r.Context(), input.ProviderRef, input.Provider)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	response.Success(w, result)
}

// Webhook handles POST /api/payments/webhook/{provider}. The transport is
// unauthenticated; authenticity rests entirely on the provider signature.
// Any verified-and-processed or verified-duplicate delivery answers 200 so
// the provider stops redelivering.
func (c *PaymentController) Webhook(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := c.service.HandleWebhook(r.Context(), providerName, r.Header, body); err != nil {
		c.writeError(w, r, err)
		return
	}
	response.Success(w, nil)
}

// Payments handles GET /api/orders/{id}/payments.
func (c *PaymentController) Payments(w http.ResponseWriter, r *http.Request) {
	rows, err := c.service.Payments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	response.Success(w, rows)
}

// writeError maps service errors to HTTP responses. Provider internals are
// logged in full but never surfaced to clients.
func (c *PaymentController) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var provErr *payment.Error

	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFound(w)
	case errors.Is(err, services.ErrAlreadyPaid):
		response.ErrorCode(w, http.StatusBadRequest, "already_paid", "order already paid")
	case errors.Is(err, services.ErrSignatureInvalid):
		response.ErrorCode(w, http.StatusBadRequest, "signature_invalid", "webhook signature invalid")
	case errors.Is(err, services.ErrEventMalformed):
		// A parse failure after a valid signature is still the sender's
		// problem; a 5xx here would miscategorize the redelivery cause.
		response.ErrorCode(w, http.StatusBadRequest, "malformed_event", "webhook event malformed")
	case errors.As(err, &provErr):
		logger.WithCtx(r.Context()).Error("provider call failed",
			"provider", provErr.Provider, "op", provErr.Op, "error", provErr.Error())
		response.ErrorCode(w, http.StatusBadGateway, "provider_error", "payment provider request failed")
	default:
		logger.WithCtx(r.Context()).Error("payment request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "internal error")
	}
}
