package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-booking/internal/apperr"
	checkoutdb "ms-booking/internal/checkout/db"
	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *checkoutdb.DB {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = bunDB.NewCreateTable().Model((*models.CheckoutIntent)(nil)).Exec(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { bunDB.Close() })
	return &checkoutdb.DB{Bun: bunDB}
}

func seedIntent(t *testing.T, d *checkoutdb.DB, id string, status models.IntentStatus, expiresAt time.Time) {
	t.Helper()
	err := d.CreateIntent(context.Background(), &models.CheckoutIntent{
		IntentID: id,
		UserID:   "user_1",
		Source:   models.IntentSourceCart,
		Items: []models.CheckoutItem{
			{ItemID: "item_1", ItemIndex: 1, EventID: "evt_1", Subtotal: 5000},
		},
		Subtotal:    5000,
		TotalAmount: 5000,
		Status:      status,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestGetIntent_RoundTrip(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	seedIntent(t, d, "intent_1", models.IntentPending, time.Now().UTC().Add(24*time.Hour))

	intent, err := d.GetIntent(ctx, "intent_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", intent.UserID)
	assert.Equal(t, models.IntentPending, intent.Status)
	require.Len(t, intent.Items, 1)
	assert.Equal(t, int64(5000), intent.Items[0].Subtotal)
}

func TestGetIntent_Missing(t *testing.T) {
	d := setupTestDB(t)

	_, err := d.GetIntent(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetPaymentID_OnlyOnPending(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	seedIntent(t, d, "intent_1", models.IntentPending, time.Now().UTC().Add(time.Hour))
	seedIntent(t, d, "intent_2", models.IntentPaid, time.Now().UTC().Add(time.Hour))

	require.NoError(t, d.SetPaymentID(ctx, "intent_1", "pay_1"))
	intent, err := d.GetIntent(ctx, "intent_1")
	require.NoError(t, err)
	assert.Equal(t, "pay_1", intent.PaymentID)

	// A paid intent no longer accepts payment attempts.
	err = d.SetPaymentID(ctx, "intent_2", "pay_2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransitionStatus_LegalMove(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	seedIntent(t, d, "intent_1", models.IntentPending, time.Now().UTC().Add(time.Hour))

	moved, err := d.TransitionStatus(ctx, "intent_1", models.IntentPending, models.IntentPaid)
	require.NoError(t, err)
	assert.True(t, moved)

	intent, err := d.GetIntent(ctx, "intent_1")
	require.NoError(t, err)
	assert.Equal(t, models.IntentPaid, intent.Status)
}

func TestTransitionStatus_WrongCurrentStatusLoses(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	seedIntent(t, d, "intent_1", models.IntentExpired, time.Now().UTC().Add(-time.Hour))

	moved, err := d.TransitionStatus(ctx, "intent_1", models.IntentPending, models.IntentPaid)
	require.NoError(t, err)
	assert.False(t, moved)

	intent, err := d.GetIntent(ctx, "intent_1")
	require.NoError(t, err)
	assert.Equal(t, models.IntentExpired, intent.Status)
}

func TestTransitionStatus_IllegalMoveNeverWrites(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	seedIntent(t, d, "intent_1", models.IntentPending, time.Now().UTC().Add(time.Hour))

	// pending -> completed skips paid and is rejected outright.
	moved, err := d.TransitionStatus(ctx, "intent_1", models.IntentPending, models.IntentCompleted)
	require.NoError(t, err)
	assert.False(t, moved)

	intent, err := d.GetIntent(ctx, "intent_1")
	require.NoError(t, err)
	assert.Equal(t, models.IntentPending, intent.Status)
}

func TestEvictExpired_SweepsOnlyLapsedPending(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedIntent(t, d, "lapsed_1", models.IntentPending, now.Add(-2*time.Hour))
	seedIntent(t, d, "lapsed_2", models.IntentPending, now.Add(-time.Minute))
	seedIntent(t, d, "live", models.IntentPending, now.Add(time.Hour))
	seedIntent(t, d, "paid", models.IntentPaid, now.Add(-time.Hour))

	n, err := d.EvictExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for id, want := range map[string]models.IntentStatus{
		"lapsed_1": models.IntentExpired,
		"lapsed_2": models.IntentExpired,
		"live":     models.IntentPending,
		"paid":     models.IntentPaid,
	} {
		intent, err := d.GetIntent(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, intent.Status, "intent %s", id)
	}

	// A second sweep finds nothing left to do.
	n, err = d.EvictExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
