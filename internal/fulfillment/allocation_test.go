package fulfillment

import (
	"math/rand"
	"testing"

	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(subtotals ...int64) []models.CheckoutItem {
	out := make([]models.CheckoutItem, len(subtotals))
	for i, s := range subtotals {
		out[i] = models.CheckoutItem{ItemIndex: i + 1, Subtotal: s}
	}
	return out
}

func TestAllocateDiscountProportional(t *testing.T) {
	// 1500 over 7000/3000 splits 1050/450 with no remainder.
	shares := AllocateDiscount(items(7000, 3000), 1500)
	assert.Equal(t, []int64{1050, 450}, shares)
}

func TestAllocateDiscountLastItemAbsorbsRemainder(t *testing.T) {
	// 1000 over 3333/3333/3334: floors are 333/333/333, the final item
	// picks up the stray unit.
	shares := AllocateDiscount(items(3333, 3333, 3334), 1000)
	assert.Equal(t, []int64{333, 333, 334}, shares)
}

func TestAllocateDiscountConservation(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := 1 + r.Intn(6)
		subtotals := make([]int64, n)
		for i := range subtotals {
			subtotals[i] = int64(r.Intn(10000)) + 1
		}
		discount := int64(r.Intn(5000))

		shares := AllocateDiscount(items(subtotals...), discount)
		require.Len(t, shares, n)

		var sum int64
		for _, s := range shares {
			sum += s
			assert.GreaterOrEqual(t, s, int64(0))
		}
		assert.Equal(t, discount, sum)
	}
}

func TestAllocateDiscountZero(t *testing.T) {
	shares := AllocateDiscount(items(5000, 5000), 0)
	assert.Equal(t, []int64{0, 0}, shares)
}

func TestAllocateDiscountEmpty(t *testing.T) {
	assert.Empty(t, AllocateDiscount(nil, 100))
}

func TestAllocateDiscountSingleItem(t *testing.T) {
	shares := AllocateDiscount(items(5500), 500)
	assert.Equal(t, []int64{500}, shares)
}

func TestAllocateDiscountOrderedByItemIndex(t *testing.T) {
	// Items arriving out of index order still allocate by index order, with
	// the highest index absorbing the remainder.
	unordered := []models.CheckoutItem{
		{ItemIndex: 3, Subtotal: 3334},
		{ItemIndex: 1, Subtotal: 3333},
		{ItemIndex: 2, Subtotal: 3333},
	}
	shares := AllocateDiscount(unordered, 1000)
	assert.Equal(t, []int64{333, 333, 334}, shares)
}
