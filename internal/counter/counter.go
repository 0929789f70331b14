package counter

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// Next atomically increments the named sequence and returns the new value.
// The single-statement upsert is the only write path to the counters table,
// so concurrent draws can never observe the same value. Callers inside a
// fulfillment transaction pass their bun.Tx so the draw shares its fate;
// aborted transactions may leave gaps, which is fine — uniqueness of used
// numbers is guaranteed, density is not.
func Next(ctx context.Context, idb bun.IDB, key string) (int64, error) {
	row := &models.Counter{Key: key, Value: 1}
	err := idb.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("value = counter.value + 1").
		Returning("value").
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("counter increment for %q: %w", key, err)
	}
	return row.Value, nil
}

// NextOrderNumber draws the next order number for the given moment, in the
// form ORD-{year}-{seq:06d}. Sequences are keyed per year.
func NextOrderNumber(ctx context.Context, idb bun.IDB, now time.Time) (string, error) {
	year := now.UTC().Year()
	seq, err := Next(ctx, idb, fmt.Sprintf("order_number_%d", year))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%d-%06d", year, seq), nil
}
