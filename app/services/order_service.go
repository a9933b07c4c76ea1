package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/vastra/app/models"
	"github.com/shashiranjanraj/vastra/app/repositories"
	"github.com/shashiranjanraj/vastra/pkg/auth"
	"github.com/shashiranjanraj/vastra/pkg/logger"
	"github.com/shashiranjanraj/vastra/pkg/metrics"
)

// OrderItemInput is one requested line item.
type OrderItemInput struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"required,gte=1"`
}

// CreateOrderInput is the checkout request body. Prices and the order total
// are computed server-side from the product catalog; client-sent amounts
// are never trusted.
type CreateOrderInput struct {
	Items           []OrderItemInput       `json:"items" validate:"required"`
	PaymentProvider string                 `json:"payment_provider" validate:"nullable,in=stripe,bkash"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
}

// OrderService owns order creation and the inventory reservation that goes
// with it.
type OrderService struct {
	db       *gorm.DB
	orders   *repositories.OrderRepository
	products *repositories.ProductRepository
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{
		db:       db,
		orders:   repositories.NewOrderRepository(db),
		products: repositories.NewProductRepository(db),
	}
}

// Create places an order. Stock decrement, the order row and its items are
// one transaction; any failure rolls the whole thing back, including
// already-reserved units of earlier line items.
//
// Reservation is strict: when the atomic decrement cannot hold stock at or
// above zero the whole order is rejected with ErrInsufficientStock rather
// than silently skipping the item.
func (s *OrderService) Create(ctx context.Context, input CreateOrderInput) (models.Order, error) {
	actor, _ := auth.ActorFromCtx(ctx)
	if len(input.Items) == 0 {
		return models.Order{}, fmt.Errorf("%w: order has no items", ErrInvalidOrder)
	}
	// Re-checked here because the reservation math depends on it: a
	// non-positive quantity would turn the atomic decrement into an
	// increment and drive the total negative.
	for _, line := range input.Items {
		if line.Quantity < 1 {
			return models.Order{}, fmt.Errorf("%w: item quantity must be at least 1", ErrInvalidOrder)
		}
	}

	order := models.Order{
		UserID:          actor.UserID,
		Status:          models.OrderPending,
		PaymentStatus:   models.PaymentPending,
		PaymentProvider: input.PaymentProvider,
		Street:          input.ShippingAddress.Street,
		City:            input.ShippingAddress.City,
		State:           input.ShippingAddress.State,
		ZipCode:         input.ShippingAddress.Zip,
		Country:         input.ShippingAddress.Country,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)

		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(input.Items))

		for _, line := range input.Items {
			product, err := products.FindByID(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}

			reserved, err := products.ReserveStock(ctx, product.ID, line.Quantity)
			if err != nil {
				return err
			}
			if !reserved {
				metrics.StockConflicts.Inc()
				return ErrInsufficientStock
			}

			productID := product.ID
			items = append(items, models.OrderItem{
				ProductID:    &productID,
				ProductName:  product.Name,
				ProductImage: product.ImageURL,
				Quantity:     line.Quantity,
				Price:        product.Price,
			})
			total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		order.Total = total
		order.Items = items
		return s.orders.WithTx(tx).Create(ctx, &order)
	})
	if err != nil {
		return models.Order{}, err
	}

	logger.WithCtx(ctx).Info("order created",
		"order_id", order.ID, "user_id", order.UserID, "total", order.Total.String())
	return order, nil
}

// Find returns an order the actor may see.
func (s *OrderService) Find(ctx context.Context, orderID string) (models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Order{}, ErrNotFound
		}
		return models.Order{}, err
	}

	actor, _ := auth.ActorFromCtx(ctx)
	if !actor.Service && !actor.Staff && order.UserID != actor.UserID {
		return models.Order{}, ErrNotFound
	}
	return order, nil
}

// ListForActor returns the actor's own orders.
func (s *OrderService) ListForActor(ctx context.Context, limit, offset int) ([]models.Order, error) {
	actor, _ := auth.ActorFromCtx(ctx)
	return s.orders.FindByUser(ctx, actor.UserID, limit, offset)
}

// Cancel moves a pending, unpaid order to cancelled and releases its
// reserved stock. Paid orders go through a refund flow instead.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (models.Order, error) {
	var cancelled models.Order

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)

		order, err := orders.FindByIDLocked(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		actor, _ := auth.ActorFromCtx(ctx)
		if !actor.Service && !actor.Staff && order.UserID != actor.UserID {
			return ErrNotFound
		}
		if order.PaymentStatus == models.PaymentSuccess {
			return ErrAlreadyPaid
		}
		if order.Status != models.OrderPending {
			return ErrForbidden
		}

		order.Status = models.OrderCancelled
		if err := orders.Save(ctx, &order); err != nil {
			return err
		}

		// The locked fetch does not preload items; load them to release
		// their stock.
		full, err := orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		products := s.products.WithTx(tx)
		for _, item := range full.Items {
			if item.ProductID == nil {
				continue
			}
			if err := products.ReleaseStock(ctx, *item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		cancelled = order
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	logger.WithCtx(ctx).Info("order cancelled", "order_id", orderID)
	return cancelled, nil
}
