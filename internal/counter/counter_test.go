package counter_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"ms-booking/internal/counter"
	"ms-booking/internal/models"

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
	_, err = bunDB.NewCreateTable().Model((*models.Counter)(nil)).Exec(context.Background())
	require.NoError(t, err)

	return bunDB
}

func TestNext_Sequential(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := counter.Next(ctx, db, "order_number_2026")
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestNext_IndependentKeys(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	a, err := counter.Next(ctx, db, "order_number_2025")
	require.NoError(t, err)
	b, err := counter.Next(ctx, db, "order_number_2026")
	require.NoError(t, err)

	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(1), b)
}

func TestNext_ConcurrentDrawsAreUnique(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	const draws = 50
	results := make(chan int64, draws)
	var wg sync.WaitGroup
	for i := 0; i < draws; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := counter.Next(context.Background(), db, "concurrent")
			assert.NoError(t, err)
			results <- v
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for v := range results {
		assert.False(t, seen[v], "duplicate counter value %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, draws)
}

func TestNextOrderNumber_Format(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	now := time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)

	first, err := counter.NextOrderNumber(ctx, db, now)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-000001", first)

	second, err := counter.NextOrderNumber(ctx, db, now)
	require.NoError(t, err)
	assert.Equal(t, "ORD-2026-000002", second)

	// A different year starts its own sequence.
	other, err := counter.NextOrderNumber(ctx, db, now.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "ORD-2027-000001", other)
}
