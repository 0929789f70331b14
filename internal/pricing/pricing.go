package pricing

import (
	"math"

	"ms-booking/internal/models"
)

// Planner fee bounds in rupees.
const (
	plannerRate    = 0.08
	plannerFloor   = 3000
	plannerCeiling = 15000
)

// ComputeSubtotal prices one cart/draft line item from its frozen snapshots:
// the tier price with the event-level percentage discount applied, plus the
// undiscounted add-on tier prices, rounded to the nearest rupee.
//
// Pure function. Callers must pass the tier/discount values authoritative at
// mutation time and store the result; subtotals are never derived at read
// time.
func ComputeSubtotal(tier models.TierSnapshot, addons []models.AddonSnapshot, eventDiscountPercent float64) int64 {
	base := float64(tier.Price)
	if eventDiscountPercent > 0 {
		base -= base * eventDiscountPercent / 100
	}

	total := base
	for _, addon := range addons {
		total += float64(addon.SelectedTier.Price)
	}
	return int64(math.Round(total))
}

// PlannerPrice is the event-planner fee for a booking subtotal: 8% of the
// subtotal, clamped to [3000, 15000].
func PlannerPrice(subtotal int64) int64 {
	fee := int64(math.Round(float64(subtotal) * plannerRate))
	if fee < plannerFloor {
		return plannerFloor
	}
	if fee > plannerCeiling {
		return plannerCeiling
	}
	return fee
}
