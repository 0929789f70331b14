package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-booking/internal/apperr"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// CreateIntent inserts a new checkout intent.
func (d *DB) CreateIntent(ctx context.Context, intent *models.CheckoutIntent) error {
	_, err := d.Bun.NewInsert().Model(intent).Exec(ctx)
	return err
}

// GetIntent fetches one intent, mapping an absent row to ErrNotFound.
func (d *DB) GetIntent(ctx context.Context, intentID string) (*models.CheckoutIntent, error) {
	var intent models.CheckoutIntent
	err := d.Bun.NewSelect().
		Model(&intent).
		Where("intent_id = ?", intentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &intent, nil
}

// SetPaymentID stamps the active payment attempt onto a pending intent.
func (d *DB) SetPaymentID(ctx context.Context, intentID, paymentID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.CheckoutIntent)(nil)).
		Set("payment_id = ?", paymentID).
		Where("intent_id = ? AND status = ?", intentID, models.IntentPending).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// TransitionStatus moves an intent from one status to another; the WHERE on
// the current status makes concurrent movers lose cleanly.
func (d *DB) TransitionStatus(ctx context.Context, intentID string, from, to models.IntentStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, nil
	}
	res, err := d.Bun.NewUpdate().
		Model((*models.CheckoutIntent)(nil)).
		Set("status = ?", to).
		Where("intent_id = ? AND status = ?", intentID, from).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// EvictExpired flips pending intents past their deadline to expired. Run
// periodically; this is the storage-level TTL sweep backing the Redis keys.
func (d *DB) EvictExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.CheckoutIntent)(nil)).
		Set("status = ?", models.IntentExpired).
		Where("status = ? AND expires_at < ?", models.IntentPending, now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
