package pricing_test

import (
	"testing"

	"ms-booking/internal/models"
	"ms-booking/internal/pricing"

	"github.com/stretchr/testify/assert"
)

func TestComputeSubtotal_WithDiscountAndAddon(t *testing.T) {
	// Tier 5000 with 10% discount plus one 1000 add-on => 5500
	tier := models.TierSnapshot{TierID: "tier-1", Name: "Gold", Price: 5000}
	addons := []models.AddonSnapshot{
		{AddonID: "addon-1", Name: "Balloon Arch", SelectedTier: models.TierSnapshot{TierID: "a1-basic", Price: 1000}},
	}

	subtotal := pricing.ComputeSubtotal(tier, addons, 10)
	assert.Equal(t, int64(5500), subtotal)
}

func TestComputeSubtotal_NoDiscount(t *testing.T) {
	tier := models.TierSnapshot{TierID: "tier-1", Price: 4200}

	subtotal := pricing.ComputeSubtotal(tier, nil, 0)
	assert.Equal(t, int64(4200), subtotal)
}

func TestComputeSubtotal_DiscountDoesNotTouchAddons(t *testing.T) {
	tier := models.TierSnapshot{TierID: "tier-1", Price: 1000}
	addons := []models.AddonSnapshot{
		{AddonID: "addon-1", SelectedTier: models.TierSnapshot{Price: 500}},
		{AddonID: "addon-2", SelectedTier: models.TierSnapshot{Price: 300}},
	}

	// 50% off the base only: 500 + 500 + 300
	subtotal := pricing.ComputeSubtotal(tier, addons, 50)
	assert.Equal(t, int64(1300), subtotal)
}

func TestComputeSubtotal_RoundsToNearestRupee(t *testing.T) {
	// 999 * 0.85 = 849.15 -> 849
	subtotal := pricing.ComputeSubtotal(models.TierSnapshot{Price: 999}, nil, 15)
	assert.Equal(t, int64(849), subtotal)

	// 995 * 0.905 = 900.475... use 9.5% -> 900.48 rounds to 900
	subtotal = pricing.ComputeSubtotal(models.TierSnapshot{Price: 995}, nil, 9.5)
	assert.Equal(t, int64(900), subtotal)
}

func TestComputeSubtotal_Deterministic(t *testing.T) {
	tier := models.TierSnapshot{TierID: "tier-1", Price: 7777}
	addons := []models.AddonSnapshot{
		{AddonID: "addon-1", SelectedTier: models.TierSnapshot{Price: 333}},
	}

	first := pricing.ComputeSubtotal(tier, addons, 12.5)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, pricing.ComputeSubtotal(tier, addons, 12.5))
	}
}

func TestPlannerPrice_Clamped(t *testing.T) {
	// 8% of 100000 = 8000, inside the band
	assert.Equal(t, int64(8000), pricing.PlannerPrice(100000))

	// Small subtotal hits the floor
	assert.Equal(t, int64(3000), pricing.PlannerPrice(1000))

	// Huge subtotal hits the ceiling
	assert.Equal(t, int64(15000), pricing.PlannerPrice(1_000_000))

	// Bounds hold across a sweep
	for subtotal := int64(0); subtotal <= 2_000_000; subtotal += 37_501 {
		fee := pricing.PlannerPrice(subtotal)
		assert.GreaterOrEqual(t, fee, int64(3000))
		assert.LessOrEqual(t, fee, int64(15000))
	}
}
