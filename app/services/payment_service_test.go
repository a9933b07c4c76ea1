package services

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/vastra/app/models"
	"github.com/shashiranjanraj/vastra/app/services/payment"
)

func intentFake(ref string) *fakeProvider {
	return &fakeProvider{
		intent: payment.IntentResult{
			ProviderRef:  ref,
			ClientSecret: ref + "_secret",
			Status:       "requires_payment_method",
			Raw:          `{"id":"` + ref + `"}`,
		},
	}
}

func TestCreateIntentRecordsPendingPayment(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "100.00")

	fake := intentFake("pi_a1")
	svc := NewPaymentService(db, fake)

	result, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "pi_a1", result.ProviderRef)
	assert.Equal(t, "pi_a1_secret", result.ClientSecret)

	var rows []models.Payment
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, models.PaymentPending, rows[0].Status)
	assert.Equal(t, "stripe", rows[0].Provider)
	require.NotNil(t, rows[0].TransactionID)
	assert.Equal(t, "pi_a1", *rows[0].TransactionID)
	assert.True(t, rows[0].Amount.Equal(order.Total))
}

func TestCreateIntentProviderFailureWritesNothing(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "50.00")

	fake := &fakeProvider{intentErr: &payment.Error{Provider: "stripe", Op: "create_intent", Message: "down"}}
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Zero(t, count, "no partial ledger row for a failed create")
}

func TestCreateIntentRejectsForeignOrder(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db)
	order := seedOrder(t, db, owner.ID, "10.00")

	svc := NewPaymentService(db, intentFake("pi_x"))

	_, err := svc.CreateIntent(userCtx(owner.ID+1), order.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateIntentServiceActorActsForOrderOwner(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "75.00")

	svc := NewPaymentService(db, intentFake("pi_m2m"))

	_, err := svc.CreateIntent(serviceCtx(), order.ID, "")
	require.NoError(t, err)

	var row models.Payment
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&row).Error)
	assert.Equal(t, user.ID, row.UserID, "ledger row belongs to the order's owner, not the machine caller")
}

func webhookSuccess(t *testing.T, svc *PaymentService, fake *fakeProvider, orderID, ref, trx string) {
	t.Helper()
	fake.webhook = payment.WebhookEvent{
		Provider:      fake.Name(),
		ProviderRef:   ref,
		OrderID:       orderID,
		Outcome:       payment.OutcomeSucceeded,
		TransactionID: trx,
		Raw:           []byte(`{"status":"succeeded"}`),
	}
	require.NoError(t, svc.HandleWebhook(serviceCtx(), fake.Name(), http.Header{}, []byte(`{}`)))
}

func TestWebhookSuccessReconcilesOrder(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "100.00")

	fake := intentFake("pi_b1")
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)

	webhookSuccess(t, svc, fake, order.ID, "pi_b1", "pi_b1")

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentSuccess, got.PaymentStatus)
	assert.Equal(t, models.OrderProcessing, got.Status)
	require.NotNil(t, got.TransactionID)
	assert.Equal(t, "pi_b1", *got.TransactionID)

	var row models.Payment
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&row).Error)
	assert.Equal(t, models.PaymentSuccess, row.Status)
}

func TestConfirmAfterWebhookIsNoOp(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "100.00")

	fake := intentFake("pi_c1")
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)
	webhookSuccess(t, svc, fake, order.ID, "pi_c1", "pi_c1")

	fake.confirm = payment.ConfirmResult{
		ProviderRef:   "pi_c1",
		Outcome:       payment.OutcomeSucceeded,
		TransactionID: "pi_c1",
		OrderID:       order.ID,
	}

	result, err := svc.Confirm(userCtx(user.ID), "pi_c1", "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, result.Status)
	assert.Equal(t, order.ID, result.OrderID)

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count, "redundant confirm must not add ledger rows")
}

func TestCreateIntentOnPaidOrderRejected(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "100.00")

	fake := intentFake("pi_d1")
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)
	webhookSuccess(t, svc, fake, order.ID, "pi_d1", "pi_d1")

	_, err = svc.CreateIntent(userCtx(user.ID), order.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestFailedOutcomeKeepsOrderPayable(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "60.00")

	fake := intentFake("pi_e1")
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)

	fake.webhook = payment.WebhookEvent{
		Provider:    "stripe",
		ProviderRef: "pi_e1",
		OrderID:     order.ID,
		Outcome:     payment.OutcomeFailed,
		Raw:         []byte(`{"status":"failed"}`),
	}
	require.NoError(t, svc.HandleWebhook(serviceCtx(), "stripe", http.Header{}, []byte(`{}`)))

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, models.OrderPending, got.Status, "a failed payment does not cancel the order")

	// A fresh intent against the same order is allowed.
	fake.intent.ProviderRef = "pi_e2"
	_, err = svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)
}

func TestSuccessIsSticky(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "80.00")

	fake := intentFake("pi_f1")
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)
	webhookSuccess(t, svc, fake, order.ID, "pi_f1", "pi_f1")

	// A late failed report for the same reference must not downgrade.
	fake.webhook = payment.WebhookEvent{
		Provider:    "stripe",
		ProviderRef: "pi_f1",
		OrderID:     order.ID,
		Outcome:     payment.OutcomeFailed,
		Raw:         []byte(`{"status":"failed"}`),
	}
	require.NoError(t, svc.HandleWebhook(serviceCtx(), "stripe", http.Header{}, []byte(`{}`)))

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentSuccess, got.PaymentStatus)

	var row models.Payment
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&row).Error)
	assert.Equal(t, models.PaymentSuccess, row.Status)
}

func TestSuccessDoesNotOverrideCancelledOrder(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "40.00")

	fake := intentFake("pi_g1")
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", models.OrderCancelled).Error)

	webhookSuccess(t, svc, fake, order.ID, "pi_g1", "pi_g1")

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentSuccess, got.PaymentStatus)
	assert.Equal(t, models.OrderCancelled, got.Status, "manual cancellation outranks the fulfillment transition")
}

func TestWebhookBadSignatureMutatesNothing(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "30.00")

	fake := intentFake("pi_h1")
	fake.webhookErr = payment.ErrSignatureInvalid
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)

	err = svc.HandleWebhook(serviceCtx(), "stripe", http.Header{}, []byte(`{}`))
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
}

func TestWebhookUnknownReferenceAcknowledged(t *testing.T) {
	db := newTestDB(t)

	fake := &fakeProvider{webhook: payment.WebhookEvent{
		Provider:    "stripe",
		ProviderRef: "pi_ghost",
		Outcome:     payment.OutcomeSucceeded,
	}}
	svc := NewPaymentService(db, fake)

	// No order id in the event, no ledger row: acknowledge and move on so
	// the provider stops redelivering.
	require.NoError(t, svc.HandleWebhook(serviceCtx(), "stripe", http.Header{}, []byte(`{}`)))
}

func TestConfirmRecoversProviderFromLedger(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "120.00")

	bkash := &fakeProvider{
		name: "bkash",
		intent: payment.IntentResult{
			ProviderRef: "TRX9",
			RedirectURL: "https://pay.test/r/TRX9",
			Raw:         `{}`,
		},
		confirm: payment.ConfirmResult{
			ProviderRef:   "TRX9",
			Outcome:       payment.OutcomeSucceeded,
			TransactionID: "8XJ1",
			OrderID:       order.ID,
		},
	}
	stripe := intentFake("pi_unused")
	svc := NewPaymentService(db, stripe, bkash)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "bkash")
	require.NoError(t, err)

	// Caller omits the provider; the ledger row supplies it.
	result, err := svc.Confirm(userCtx(user.ID), "TRX9", "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, result.Status)
	assert.EqualValues(t, 1, bkash.confirms.Load())
	assert.Zero(t, stripe.confirms.Load())

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	require.NotNil(t, got.TransactionID)
	assert.Equal(t, "8XJ1", *got.TransactionID)
}

// For execute-style providers the confirm call settles money at the
// provider, so a caller who may not see the order is stopped before the
// remote call, not after.
func TestConfirmByNonOwnerNeverReachesProvider(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db)
	order := seedOrder(t, db, owner.ID, "200.00")

	bkash := &fakeProvider{
		name: "bkash",
		intent: payment.IntentResult{
			ProviderRef: "TRX11",
			RedirectURL: "https://pay.test/r/TRX11",
			Raw:         `{}`,
		},
		confirm: payment.ConfirmResult{
			ProviderRef:   "TRX11",
			Outcome:       payment.OutcomeSucceeded,
			TransactionID: "9AA0",
			OrderID:       order.ID,
		},
	}
	svc := NewPaymentService(db, bkash)

	_, err := svc.CreateIntent(userCtx(owner.ID), order.ID, "bkash")
	require.NoError(t, err)

	_, err = svc.Confirm(userCtx(owner.ID+1), "TRX11", "bkash")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, bkash.confirms.Load(), "settlement call must not fire for a hidden order")

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
}

func TestConfirmPendingMutatesNothing(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "20.00")

	fake := intentFake("pi_p1")
	fake.confirm = payment.ConfirmResult{
		ProviderRef: "pi_p1",
		Outcome:     payment.OutcomePending,
		OrderID:     order.ID,
	}
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)

	result, err := svc.Confirm(userCtx(user.ID), "pi_p1", "")
	require.NoError(t, err)
	assert.Equal(t, string(payment.OutcomePending), result.Status)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
}

// The race the engine exists for: webhook and confirm land together. Both
// channels converge on the locked transition, so exactly one success is
// recorded and the ledger never grows a second success row.
func TestConcurrentWebhookAndConfirmSingleSuccess(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "100.00")

	fake := intentFake("pi_race")
	fake.confirm = payment.ConfirmResult{
		ProviderRef:   "pi_race",
		Outcome:       payment.OutcomeSucceeded,
		TransactionID: "pi_race",
		OrderID:       order.ID,
	}
	fake.webhook = payment.WebhookEvent{
		Provider:      "stripe",
		ProviderRef:   "pi_race",
		OrderID:       order.ID,
		Outcome:       payment.OutcomeSucceeded,
		TransactionID: "pi_race",
		Raw:           []byte(`{}`),
	}
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				errs <- svc.HandleWebhook(serviceCtx(), "stripe", http.Header{}, []byte(`{}`))
			} else {
				_, err := svc.Confirm(serviceCtx(), "pi_race", "")
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, models.PaymentSuccess, got.PaymentStatus)
	assert.Equal(t, models.OrderProcessing, got.Status)

	var successes int64
	require.NoError(t, db.Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", order.ID, models.PaymentSuccess).
		Count(&successes).Error)
	assert.EqualValues(t, 1, successes, "at most one successful ledger row per order")
}

func TestPaymentsListsLedger(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db)
	order := seedOrder(t, db, user.ID, "100.00")

	fake := intentFake("pi_l1")
	svc := NewPaymentService(db, fake)

	_, err := svc.CreateIntent(userCtx(user.ID), order.ID, "")
	require.NoError(t, err)

	rows, err := svc.Payments(userCtx(user.ID), order.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = svc.Payments(userCtx(user.ID+1), order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmUnknownReference(t *testing.T) {
	db := newTestDB(t)

	fake := intentFake("pi_z")
	fake.confirm = payment.ConfirmResult{ProviderRef: "pi_z", Outcome: payment.OutcomeSucceeded}
	svc := NewPaymentService(db, fake)

	_, err := svc.Confirm(serviceCtx(), "pi_z", "")
	assert.ErrorIs(t, err, ErrNotFound)
}
