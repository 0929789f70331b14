package fulfillment_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-booking/internal/apperr"
	"ms-booking/internal/config"
	"ms-booking/internal/fulfillment"
	fdb "ms-booking/internal/fulfillment/db"
	"ms-booking/internal/fulfillment/qr"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A single in-memory connection keeps all statements on one database.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.CheckoutIntent)(nil),
		(*models.Order)(nil),
		(*models.Counter)(nil),
		(*models.CartItem)(nil),
	} {
		_, err = bunDB.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
	return bunDB
}

// fakeLocker grants every lock; lock behavior has its own Redis tests.
type fakeLocker struct{}

func (fakeLocker) LockFulfillment(ctx context.Context, intentID, token string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (fakeLocker) UnlockFulfillment(ctx context.Context, intentID, token string) error { return nil }
func (fakeLocker) DropIntentTTL(ctx context.Context, intentID string) error            { return nil }

// capturePublisher records everything published.
type capturePublisher struct {
	mu        sync.Mutex
	orders    []models.Order
	confirmed []models.BookingConfirmedEvent
	alerts    []models.AlertEvent
}

func (p *capturePublisher) PublishOrderCreated(ctx context.Context, topic string, order models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, order)
	return nil
}

func (p *capturePublisher) PublishBookingConfirmed(ctx context.Context, topic string, event models.BookingConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, event)
	return nil
}

func (p *capturePublisher) PublishAlert(ctx context.Context, topic string, event models.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, event)
	return nil
}

func newTestService(t *testing.T) (*fulfillment.Service, *bun.DB, *capturePublisher) {
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	pub := &capturePublisher{}
	svc := fulfillment.NewService(
		&fdb.DB{Bun: db},
		fakeLocker{},
		pub,
		qr.NewQRGenerator("test-secret"),
		config.TopicConfig{
			OrderCreated:     "booking.order.created",
			BookingConfirmed: "booking.confirmed",
			AlertSend:        "alert.send",
		},
		logger.NewLogger(),
	)
	return svc, db, pub
}

func paidIntent(t *testing.T, db *bun.DB, items []models.CheckoutItem, discount int64) *models.CheckoutIntent {
	t.Helper()
	var subtotal int64
	for _, item := range items {
		subtotal += item.Subtotal
	}
	now := time.Now().UTC()
	intent := &models.CheckoutIntent{
		IntentID:    uuid.NewString(),
		UserID:      "user-1",
		Source:      models.IntentSourceCart,
		CartID:      "cart-1",
		Items:       items,
		Subtotal:    subtotal,
		Discount:    discount,
		TotalAmount: subtotal - discount,
		PaymentID:   "pay_1",
		Status:      models.IntentPaid,
		ExpiresAt:   now.Add(time.Hour),
		CreatedAt:   now,
	}
	_, err := db.NewInsert().Model(intent).Exec(context.Background())
	require.NoError(t, err)
	return intent
}

func lineItems(subtotals ...int64) []models.CheckoutItem {
	items := make([]models.CheckoutItem, len(subtotals))
	for i, s := range subtotals {
		items[i] = models.CheckoutItem{
			ItemID:        uuid.NewString(),
			ItemIndex:     i + 1,
			EventID:       uuid.NewString(),
			EventCategory: models.CategoryBirthdayEvent,
			EventTitle:    "Test Event",
			SelectedTier:  models.TierSnapshot{TierID: "gold", Name: "Gold", Price: s},
			Subtotal:      s,
		}
	}
	return items
}

func TestFulfillIntentCreatesOrders(t *testing.T) {
	svc, db, pub := newTestService(t)
	ctx := context.Background()

	intent := paidIntent(t, db, lineItems(7000, 3000), 1500)

	result, err := svc.FulfillIntent(ctx, intent.IntentID)
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)

	// Scenario: 1500 over 7000/3000 allocates 1050/450.
	assert.Equal(t, int64(1050), result.Orders[0].Discount)
	assert.Equal(t, int64(450), result.Orders[1].Discount)
	assert.Equal(t, int64(5950), result.Orders[0].TotalAmount)
	assert.Equal(t, int64(2550), result.Orders[1].TotalAmount)

	year := time.Now().UTC().Year()
	assert.Equal(t, fmt.Sprintf("ORD-%d-%06d", year, 1), result.Orders[0].OrderNumber)
	assert.Equal(t, fmt.Sprintf("ORD-%d-%06d", year, 2), result.Orders[1].OrderNumber)

	// Intent is completed and stamped with the batch.
	var got models.CheckoutIntent
	require.NoError(t, db.NewSelect().Model(&got).Where("intent_id = ?", intent.IntentID).Scan(ctx))
	assert.Equal(t, models.IntentCompleted, got.Status)
	assert.Equal(t, result.BatchID, got.OrderBatchID)

	// Events only after success: one per order plus the confirmation.
	assert.Len(t, pub.orders, 2)
	require.Len(t, pub.confirmed, 1)
	assert.Equal(t, result.BatchID, pub.confirmed[0].CheckoutBatchID)
	assert.Len(t, pub.confirmed[0].BookingDetails, 2)
	assert.NotEmpty(t, pub.confirmed[0].BookingDetails[0].ConfirmationQR)
}

func TestFulfillIntentDiscountConservation(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	// 1000 over 3333/3333/3334 gives 333/333/334.
	intent := paidIntent(t, db, lineItems(3333, 3333, 3334), 1000)

	result, err := svc.FulfillIntent(ctx, intent.IntentID)
	require.NoError(t, err)
	require.Len(t, result.Orders, 3)

	var sum int64
	for _, order := range result.Orders {
		sum += order.Discount
	}
	assert.Equal(t, int64(1000), sum)
	assert.Equal(t, int64(334), result.Orders[2].Discount)
}

func TestFulfillIntentIdempotent(t *testing.T) {
	svc, db, pub := newTestService(t)
	ctx := context.Background()

	intent := paidIntent(t, db, lineItems(5000), 0)

	first, err := svc.FulfillIntent(ctx, intent.IntentID)
	require.NoError(t, err)

	second, err := svc.FulfillIntent(ctx, intent.IntentID)
	assert.ErrorIs(t, err, apperr.ErrIdempotentNoop)
	require.NotNil(t, second)
	assert.Equal(t, first.BatchID, second.BatchID)
	require.Len(t, second.Orders, 1)
	assert.Equal(t, first.Orders[0].OrderID, second.Orders[0].OrderID)

	// No duplicate rows, no duplicate events.
	count, err := db.NewSelect().Model((*models.Order)(nil)).Where("checkout_intent_id = ?", intent.IntentID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, pub.confirmed, 1)
}

func TestFulfillIntentConcurrentTriggers(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	intent := paidIntent(t, db, lineItems(4000, 2000), 600)

	const workers = 8
	var wg sync.WaitGroup
	batches := make([]string, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.FulfillIntent(ctx, intent.IntentID)
			errs[i] = err
			if result != nil {
				batches[i] = result.BatchID
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < workers; i++ {
		switch {
		case errs[i] == nil:
			winners++
		default:
			assert.ErrorIs(t, errs[i], apperr.ErrIdempotentNoop)
		}
		assert.Equal(t, batches[0], batches[i])
	}
	assert.Equal(t, 1, winners)

	count, err := db.NewSelect().Model((*models.Order)(nil)).Where("checkout_intent_id = ?", intent.IntentID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestFulfillIntentRejectsUnpaid(t *testing.T) {
	svc, db, pub := newTestService(t)
	ctx := context.Background()

	intent := paidIntent(t, db, lineItems(5000), 0)
	_, err := db.NewUpdate().
		Model((*models.CheckoutIntent)(nil)).
		Set("status = ?", models.IntentPending).
		Where("intent_id = ?", intent.IntentID).
		Exec(ctx)
	require.NoError(t, err)

	_, err = svc.FulfillIntent(ctx, intent.IntentID)
	assert.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Empty(t, pub.confirmed)
}

func TestFulfillIntentRejectsExpired(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	intent := paidIntent(t, db, lineItems(5000), 0)
	_, err := db.NewUpdate().
		Model((*models.CheckoutIntent)(nil)).
		Set("status = ?", models.IntentExpired).
		Where("intent_id = ?", intent.IntentID).
		Exec(ctx)
	require.NoError(t, err)

	_, err = svc.FulfillIntent(ctx, intent.IntentID)
	assert.Error(t, err)
}

func TestFulfillIntentUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.FulfillIntent(context.Background(), "no-such-intent")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFulfillIntentRemovesCartRows(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	items := lineItems(5000, 3000)
	intent := paidIntent(t, db, items, 0)

	now := time.Now().UTC()
	for _, item := range items {
		row := &models.CartItem{
			ItemID:        item.ItemID,
			CartID:        "cart-1",
			EventID:       item.EventID,
			EventCategory: item.EventCategory,
			EventTitle:    item.EventTitle,
			SelectedTier:  item.SelectedTier,
			Subtotal:      item.Subtotal,
			ItemIndex:     item.ItemIndex,
			IsCheckedOut:  true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, err := db.NewInsert().Model(row).Exec(ctx)
		require.NoError(t, err)
	}

	_, err := svc.FulfillIntent(ctx, intent.IntentID)
	require.NoError(t, err)

	count, err := db.NewSelect().Model((*models.CartItem)(nil)).Where("cart_id = ?", "cart-1").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
