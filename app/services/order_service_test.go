package services

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/vastra/app/models"
)

func TestCreateOrderComputesTotalsAndReservesStock(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	saree := seedProduct(t, db, "Banarasi Saree", "120.50", 10)
	scarf := seedProduct(t, db, "Silk Scarf", "19.99", 4)

	svc := NewOrderService(db)
	order, err := svc.Create(userCtx(user.ID), CreateOrderInput{
		Items: []OrderItemInput{
			{ProductID: saree.ID, Quantity: 2},
			{ProductID: scarf.ID, Quantity: 1},
		},
		PaymentProvider: "stripe",
		ShippingAddress: models.ShippingAddress{
			Street: "12 Lake Rd", City: "Dhaka", Zip: "1207", Country: "BD",
		},
	})
	require.NoError(t, err)

	// 2 * 120.50 + 19.99, priced from the catalog, not the client.
	assert.Equal(t, "260.99", order.Total.StringFixed(2))
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Banarasi Saree", order.Items[0].ProductName)

	var got models.Product
	require.NoError(t, db.First(&got, saree.ID).Error)
	assert.Equal(t, 8, got.Stock)
	require.NoError(t, db.First(&got, scarf.ID).Error)
	assert.Equal(t, 3, got.Stock)
}

func TestCreateOrderInsufficientStockRejectsWholeOrder(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	plenty := seedProduct(t, db, "Cotton Kurta", "45.00", 20)
	scarce := seedProduct(t, db, "Limited Dupatta", "99.00", 1)

	svc := NewOrderService(db)
	_, err := svc.Create(userCtx(user.ID), CreateOrderInput{
		Items: []OrderItemInput{
			{ProductID: plenty.ID, Quantity: 3},
			{ProductID: scarce.ID, Quantity: 2},
		},
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// The first line's reservation rolled back with the rest.
	var got models.Product
	require.NoError(t, db.First(&got, plenty.ID).Error)
	assert.Equal(t, 20, got.Stock)
	require.NoError(t, db.First(&got, scarce.ID).Error)
	assert.Equal(t, 1, got.Stock)

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

// Stock only ever moves by decrement: a non-positive quantity would flip
// the atomic reservation into an increment and drive the total negative,
// so it is rejected before any line is priced.
func TestCreateOrderRejectsNonPositiveQuantity(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	product := seedProduct(t, db, "Handloom Saree", "50.00", 5)

	svc := NewOrderService(db)
	for _, qty := range []int{0, -3} {
		_, err := svc.Create(userCtx(user.ID), CreateOrderInput{
			Items: []OrderItemInput{{ProductID: product.ID, Quantity: qty}},
		})
		assert.ErrorIs(t, err, ErrInvalidOrder, "quantity %d", qty)
	}

	var got models.Product
	require.NoError(t, db.First(&got, product.ID).Error)
	assert.Equal(t, 5, got.Stock)

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateOrderWithoutItemsRejected(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)

	svc := NewOrderService(db)
	_, err := svc.Create(userCtx(user.ID), CreateOrderInput{})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)

	svc := NewOrderService(db)
	_, err := svc.Create(userCtx(user.ID), CreateOrderInput{
		Items: []OrderItemInput{{ProductID: 9999, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentCheckoutsStopAtStockFloor(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	product := seedProduct(t, db, "Festival Saree", "150.00", 5)

	svc := NewOrderService(db)

	const buyers = 10
	var ok, conflict atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(userCtx(user.ID), CreateOrderInput{
				Items: []OrderItemInput{{ProductID: product.ID, Quantity: 1}},
			})
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, ErrInsufficientStock):
				conflict.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, ok.Load())
	assert.EqualValues(t, 5, conflict.Load())

	var got models.Product
	require.NoError(t, db.First(&got, product.ID).Error)
	assert.Equal(t, 0, got.Stock, "stock never goes below zero")
}

func TestCancelReleasesStock(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	product := seedProduct(t, db, "Embroidered Shawl", "60.00", 6)

	svc := NewOrderService(db)
	order, err := svc.Create(userCtx(user.ID), CreateOrderInput{
		Items: []OrderItemInput{{ProductID: product.ID, Quantity: 4}},
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(userCtx(user.ID), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	var got models.Product
	require.NoError(t, db.First(&got, product.ID).Error)
	assert.Equal(t, 6, got.Stock)
}

func TestCancelPaidOrderRejected(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "90.00")

	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("payment_status", models.PaymentSuccess).Error)

	svc := NewOrderService(db)
	_, err := svc.Cancel(userCtx(user.ID), order.ID)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestCancelForeignOrderHidden(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db)
	order := seedOrder(t, db, owner.ID, "15.00")

	svc := NewOrderService(db)
	_, err := svc.Cancel(userCtx(owner.ID+1), order.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderPending, got.Status)
}

func TestFindScopesToActor(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db)
	order := seedOrder(t, db, owner.ID, "33.00")

	svc := NewOrderService(db)

	got, err := svc.Find(userCtx(owner.ID), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.Find(userCtx(owner.ID+1), order.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// A machine caller may read any order.
	_, err = svc.Find(serviceCtx(), order.ID)
	require.NoError(t, err)
}
