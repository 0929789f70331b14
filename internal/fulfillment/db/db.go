package db

import (
	"context"
	"database/sql"
	"errors"

	"ms-booking/internal/apperr"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type DB struct {
	Bun *bun.DB
}

// RunInTx wraps fn in one database transaction.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, fn)
}

// GetIntentForUpdate loads the intent with a row lock so concurrent
// fulfillment attempts serialize. SQLite has no FOR UPDATE; its single-writer
// model covers the same ground in tests.
func (d *DB) GetIntentForUpdate(ctx context.Context, idb bun.IDB, intentID string) (*models.CheckoutIntent, error) {
	var intent models.CheckoutIntent
	q := idb.NewSelect().
		Model(&intent).
		Where("intent_id = ?", intentID)
	if d.Bun.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &intent, nil
}

// OrdersByIntentID returns every order created from an intent, in order
// number order.
func (d *DB) OrdersByIntentID(ctx context.Context, idb bun.IDB, intentID string) ([]models.Order, error) {
	var orders []models.Order
	err := idb.NewSelect().
		Model(&orders).
		Where("checkout_intent_id = ?", intentID).
		Order("order_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// InsertOrders bulk-inserts a fulfillment batch.
func (d *DB) InsertOrders(ctx context.Context, idb bun.IDB, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	_, err := idb.NewInsert().Model(&orders).Exec(ctx)
	return err
}

// CompleteIntent moves a paid intent to completed and stamps the batch. The
// WHERE on paid makes a concurrent completer lose.
func (d *DB) CompleteIntent(ctx context.Context, idb bun.IDB, intentID, batchID string) (bool, error) {
	res, err := idb.NewUpdate().
		Model((*models.CheckoutIntent)(nil)).
		Set("status = ?", models.IntentCompleted).
		Set("order_batch_id = ?", batchID).
		Where("intent_id = ? AND status = ?", intentID, models.IntentPaid).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveFulfilledItems deletes the cart rows an intent consumed.
func (d *DB) RemoveFulfilledItems(ctx context.Context, idb bun.IDB, cartID string, itemIDs []string) error {
	if cartID == "" || len(itemIDs) == 0 {
		return nil
	}
	_, err := idb.NewDelete().
		Model((*models.CartItem)(nil)).
		Where("cart_id = ? AND item_id IN (?)", cartID, bun.In(itemIDs)).
		Exec(ctx)
	return err
}

// OrdersByUserID lists a user's orders, newest first.
func (d *DB) OrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}
