package services

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shashiranjanraj/vastra/app/models"
	"github.com/shashiranjanraj/vastra/app/services/payment"
	"github.com/shashiranjanraj/vastra/pkg/auth"
)

// newTestDB opens a per-test in-memory SQLite database. A single
// connection keeps SQLite's writer model deterministic under the
// concurrency tests.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Category{}, &models.Product{},
		&models.Order{}, &models.OrderItem{}, &models.Payment{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{Name: "Tester", Email: fmt.Sprintf("%s@test.local", t.Name()), Password: "x"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedOrder(t *testing.T, db *gorm.DB, userID uint, total string) models.Order {
	t.Helper()
	order := models.Order{
		UserID:        userID,
		Total:         decimal.RequireFromString(total),
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentPending,
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func seedProduct(t *testing.T, db *gorm.DB, name, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
		SKU:   fmt.Sprintf("%s-%s", t.Name(), name),
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

func userCtx(userID uint) context.Context {
	return auth.WithActor(context.Background(), auth.Actor{UserID: userID})
}

func serviceCtx() context.Context {
	return auth.WithActor(context.Background(), auth.Actor{Service: true})
}

// fakeProvider scripts adapter behavior for engine tests.
type fakeProvider struct {
	name       string
	intent     payment.IntentResult
	intentErr  error
	confirm    payment.ConfirmResult
	confirmErr error
	webhook    payment.WebhookEvent
	webhookErr error

	creates  atomic.Int32
	confirms atomic.Int32
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return "stripe"
	}
	return f.name
}

func (f *fakeProvider) Currency() string { return "usd" }

func (f *fakeProvider) CreateIntent(context.Context, decimal.Decimal, map[string]string) (payment.IntentResult, error) {
	f.creates.Add(1)
	return f.intent, f.intentErr
}

func (f *fakeProvider) ConfirmIntent(context.Context, string) (payment.ConfirmResult, error) {
	f.confirms.Add(1)
	return f.confirm, f.confirmErr
}

func (f *fakeProvider) VerifyWebhook(http.Header, []byte) (payment.WebhookEvent, error) {
	return f.webhook, f.webhookErr
}
