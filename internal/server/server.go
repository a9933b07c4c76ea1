// Package server boots the application: configuration, logging, database,
// cache, storage, queue workers, the websocket hub and the HTTP surface.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shashiranjanraj/vastra/app/controllers"
	"github.com/shashiranjanraj/vastra/app/routes"
	"github.com/shashiranjanraj/vastra/app/services"
	"github.com/shashiranjanraj/vastra/app/services/payment"
	"github.com/shashiranjanraj/vastra/config"
	_ "github.com/shashiranjanraj/vastra/database/migrations"
	"github.com/shashiranjanraj/vastra/pkg/cache"
	"github.com/shashiranjanraj/vastra/pkg/database"
	"github.com/shashiranjanraj/vastra/pkg/event"
	"github.com/shashiranjanraj/vastra/pkg/logger"
	"github.com/shashiranjanraj/vastra/pkg/metrics"
	"github.com/shashiranjanraj/vastra/pkg/middleware"
	"github.com/shashiranjanraj/vastra/pkg/migration"
	"github.com/shashiranjanraj/vastra/pkg/queue"
	"github.com/shashiranjanraj/vastra/pkg/reqid"
	"github.com/shashiranjanraj/vastra/pkg/response"
	"github.com/shashiranjanraj/vastra/pkg/router"
	"github.com/shashiranjanraj/vastra/pkg/storage"
	"github.com/shashiranjanraj/vastra/pkg/ws"
)

const queueWorkers = 4

// Start boots everything and serves until SIGINT/SIGTERM, then drains
// in-flight requests before returning.
func Start() error {
	if err := config.Load(); err != nil {
		return err
	}

	if uri := config.LogMongoURI(); uri != "" {
		sink, err := logger.AttachMongoSink(uri, config.LogMongoDatabase(), config.LogMongoCollection())
		if err != nil {
			logger.Warn("mongo log sink disabled", "error", err)
		} else {
			defer sink.Close()
		}
	}

	if err := database.Connect(); err != nil {
		return err
	}
	if err := migration.New(database.DB).Run(); err != nil {
		return err
	}

	// Cache and storage degrade gracefully; the engine itself only needs
	// the database.
	if err := cache.Connect(); err != nil {
		logger.Warn("cache unavailable, running without it", "error", err)
	}
	storage.Connect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services.RegisterJobs()
	queue.UseDB(database.DB)
	if rdb := cache.RDB; rdb != nil {
		queue.SetDriver(queue.NewRedisDriver(rdb))
	}
	queue.StartWorkers(ctx, queueWorkers)

	srv := &http.Server{
		Addr:              ":" + config.AppPort(),
		Handler:           NewRouter().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("vastra listening", "addr", srv.Addr, "env", config.AppEnv())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// NewRouter wires providers, services, controllers and routes into the
// full HTTP surface. Split from Start so tests can serve it in-process and
// the CLI can list routes.
func NewRouter() *router.Router {
	db := database.DB

	paymentService := services.NewPaymentService(db, payment.NewStripe(), payment.NewBkash())
	orderService := services.NewOrderService(db)
	catalogService := services.NewCatalogService(db)
	authService := services.NewAuthService(db)

	hub := ws.NewHub()
	event.Listen(services.EventPaymentUpdated, func(payload interface{}) {
		update, ok := payload.(services.PaymentUpdate)
		if !ok {
			return
		}
		hub.Broadcast(update.OrderID, update)
	})

	r := router.New()
	r.Use(reqid.Middleware(), middleware.Logger, metrics.Middleware(), middleware.Recovery)

	r.Get("/healthz", "healthz", func(w http.ResponseWriter, _ *http.Request) {
		response.Success(w, map[string]string{"status": "ok"})
	})
	r.HandleFunc("/metrics", metrics.Handler())

	routes.RegisterAPI(r, routes.Controllers{
		Auth:    controllers.NewAuthController(authService),
		Catalog: controllers.NewCatalogController(catalogService),
		Order:   controllers.NewOrderController(orderService),
		Payment: controllers.NewPaymentController(paymentService),
		OrderWS: orderStatusSocket(hub, orderService),
	})

	return r
}

// orderStatusSocket upgrades to a websocket subscribed to one order's
// payment updates, after checking the actor may see the order.
func orderStatusSocket(hub *ws.Hub, orders *services.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := router.Param(r, "id")
		if _, err := orders.Find(r.Context(), orderID); err != nil {
			response.NotFound(w)
			return
		}
		hub.Serve(w, r, orderID)
	}
}
