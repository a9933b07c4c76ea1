// Package routes maps the HTTP surface onto controllers.
package routes

import (
	"net/http"
	"time"

	"github.com/shashiranjanraj/vastra/app/controllers"
	"github.com/shashiranjanraj/vastra/pkg/middleware"
	"github.com/shashiranjanraj/vastra/pkg/router"
)

// Controllers bundles everything RegisterAPI wires up.
type Controllers struct {
	Auth    *controllers.AuthController
	Catalog *controllers.CatalogController
	Order   *controllers.OrderController
	Payment *controllers.PaymentController
	OrderWS http.HandlerFunc
}

// RegisterAPI mounts the public API.
//
// The webhook route is deliberately outside every auth middleware: its
// transport is unauthenticated and trust comes from the provider signature
// alone. The payment intent and confirm routes accept either a user
// session or the machine API key.
func RegisterAPI(r *router.Router, c Controllers) {
	api := r.Group("/api")

	api.Post("/auth/register", "auth.register", c.Auth.Register)
	api.Post("/auth/login", "auth.login", c.Auth.Login, middleware.RateLimit(10, time.Minute))

	api.Get("/products", "products.index", c.Catalog.Products)
	api.Get("/products/{id}", "products.show", c.Catalog.Product)
	api.Get("/categories/tree", "categories.tree", c.Catalog.CategoryTree)
	api.Post("/categories", "categories.create", c.Catalog.CreateCategory,
		middleware.Auth, middleware.Staff)

	orders := api.Group("", middleware.Auth)
	orders.Post("/orders", "orders.create", c.Order.Create)
	orders.Get("/orders", "orders.index", c.Order.List)
	orders.Get("/orders/{id}", "orders.show", c.Order.Show)
	orders.Post("/orders/{id}/cancel", "orders.cancel", c.Order.Cancel)
	orders.Get("/orders/{id}/ws", "orders.ws", c.OrderWS)

	payments := api.Group("/payments", middleware.ServiceOrAuth)
	payments.Post("/create-intent", "payments.create_intent", c.Payment.CreateIntent)
	payments.Post("/confirm", "payments.confirm", c.Payment.Confirm)
	payments.Get("/orders/{id}", "payments.ledger", c.Payment.Payments)

	api.Post("/payments/webhook/{provider}", "payments.webhook", c.Payment.Webhook)
}
