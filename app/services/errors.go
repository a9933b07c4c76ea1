// Package services contains the business logic layer. Services own
// transactions and invariants; controllers translate their errors to HTTP.
package services

import (
	"errors"

	"github.com/shashiranjanraj/vastra/app/services/payment"
)

var (
	// ErrNotFound covers any missing record a caller asked for by ID.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyPaid rejects a payment attempt against an order whose
	// payment already succeeded.
	ErrAlreadyPaid = errors.New("order already paid")

	// ErrInsufficientStock rejects an order when the atomic stock
	// decrement would drive a product's stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrForbidden rejects an actor touching another user's order.
	ErrForbidden = errors.New("not allowed")

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidOrder rejects order input that escaped request binding,
	// such as a missing item list or a non-positive quantity. Every stock
	// mutation must be a decrement of at least one unit.
	ErrInvalidOrder = errors.New("invalid order input")

	// ErrSignatureInvalid and ErrEventMalformed re-export the adapter
	// sentinels so controllers depend on one errors package.
	ErrSignatureInvalid = payment.ErrSignatureInvalid
	ErrEventMalformed   = payment.ErrEventMalformed
)
