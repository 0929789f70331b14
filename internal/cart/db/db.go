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

// ---------------- DRAFT CART ----------------

// GetDraft fetches the user's draft, mapping an absent row to ErrNotFound.
func (d *DB) GetDraft(ctx context.Context, userID string) (*models.DraftCart, error) {
	var draft models.DraftCart
	err := d.Bun.NewSelect().
		Model(&draft).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &draft, nil
}

// SaveDraft upserts the single draft row for the draft's user.
func (d *DB) SaveDraft(ctx context.Context, draft *models.DraftCart) error {
	_, err := d.Bun.NewInsert().
		Model(draft).
		On("CONFLICT (user_id) DO UPDATE").
		Set("event_id = EXCLUDED.event_id").
		Set("event_category = EXCLUDED.event_category").
		Set("event_title = EXCLUDED.event_title").
		Set("selected_tier = EXCLUDED.selected_tier").
		Set("addons = EXCLUDED.addons").
		Set("event_date = EXCLUDED.event_date").
		Set("event_time = EXCLUDED.event_time").
		Set("event_booking_date = EXCLUDED.event_booking_date").
		Set("address_id = EXCLUDED.address_id").
		Set("address_snapshot = EXCLUDED.address_snapshot").
		Set("city = EXCLUDED.city").
		Set("subtotal = EXCLUDED.subtotal").
		Set("planner_price = EXCLUDED.planner_price").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (d *DB) DeleteDraft(ctx context.Context, userID string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.DraftCart)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

// ---------------- CART ----------------

// GetCart fetches the user's cart, mapping an absent row to ErrNotFound.
func (d *DB) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := d.Bun.NewSelect().
		Model(&cart).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &cart, nil
}

// GetOrCreateCart returns the user's cart, creating the row on first use.
func (d *DB) GetOrCreateCart(ctx context.Context, userID string, cartID string) (*models.Cart, error) {
	cart, err := d.GetCart(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	fresh := &models.Cart{
		CartID:    cartID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	_, err = d.Bun.NewInsert().
		Model(fresh).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	// Re-read in case a concurrent request won the insert.
	return d.GetCart(ctx, userID)
}

func (d *DB) GetItems(ctx context.Context, cartID string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := d.Bun.NewSelect().
		Model(&items).
		Where("cart_id = ?", cartID).
		Order("item_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetItemByEvent finds the cart item for a given event, if any.
func (d *DB) GetItemByEvent(ctx context.Context, cartID, eventID string) (*models.CartItem, error) {
	var item models.CartItem
	err := d.Bun.NewSelect().
		Model(&item).
		Where("cart_id = ? AND event_id = ?", cartID, eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (d *DB) InsertItem(ctx context.Context, item *models.CartItem) error {
	_, err := d.Bun.NewInsert().Model(item).Exec(ctx)
	return err
}

func (d *DB) UpdateItem(ctx context.Context, item *models.CartItem) error {
	_, err := d.Bun.NewUpdate().
		Model(item).
		WherePK().
		Exec(ctx)
	return err
}

func (d *DB) DeleteItem(ctx context.Context, cartID, itemID string) error {
	res, err := d.Bun.NewDelete().
		Model((*models.CartItem)(nil)).
		Where("cart_id = ? AND item_id = ?", cartID, itemID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// MaxItemIndex returns the highest item_index in the cart, 0 when empty.
func (d *DB) MaxItemIndex(ctx context.Context, cartID string) (int, error) {
	var max sql.NullInt64
	err := d.Bun.NewSelect().
		ColumnExpr("MAX(item_index)").
		Table("cart_items").
		Where("cart_id = ?", cartID).
		Scan(ctx, &max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}

// MarkCheckedOut flips the checkout flag on the given items and reports how
// many rows changed.
func (d *DB) MarkCheckedOut(ctx context.Context, cartID string, itemIDs []string, checked bool) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	res, err := d.Bun.NewUpdate().
		Model((*models.CartItem)(nil)).
		Set("is_checked_out = ?", checked).
		Set("updated_at = ?", time.Now().UTC()).
		Where("cart_id = ? AND item_id IN (?)", cartID, bun.In(itemIDs)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------- CAPACITY ----------------

// CountConfirmedBookings counts bookings that consume a capacity slot for
// (eventID, city) within [dayStart, dayEnd): confirmed orders plus cart
// items already committed to checkout.
func (d *DB) CountConfirmedBookings(ctx context.Context, eventID, city string, dayStart, dayEnd time.Time) (int, error) {
	orders, err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("event_id = ? AND city = ?", eventID, city).
		Where("event_booking_date >= ? AND event_booking_date < ?", dayStart, dayEnd).
		Where("status != ?", models.OrderCancelled).
		Count(ctx)
	if err != nil {
		return 0, err
	}

	carts, err := d.Bun.NewSelect().
		Model((*models.CartItem)(nil)).
		Where("event_id = ? AND city = ?", eventID, city).
		Where("event_booking_date >= ? AND event_booking_date < ?", dayStart, dayEnd).
		Where("is_checked_out = ?", true).
		Count(ctx)
	if err != nil {
		return 0, err
	}

	return orders + carts, nil
}
