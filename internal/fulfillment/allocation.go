package fulfillment

import (
	"sort"

	"ms-booking/internal/models"
)

// AllocateDiscount splits an intent-level discount across its line items in
// proportion to their subtotals. Each item gets the floor of its exact
// share; the last item in item-index order absorbs the rounding remainder,
// so the parts always sum to discount exactly.
//
// The returned slice is positionally aligned with items sorted by ItemIndex.
func AllocateDiscount(items []models.CheckoutItem, discount int64) []int64 {
	shares := make([]int64, len(items))
	if len(items) == 0 || discount <= 0 {
		return shares
	}

	ordered := make([]models.CheckoutItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ItemIndex < ordered[j].ItemIndex
	})

	var total int64
	for _, item := range ordered {
		total += item.Subtotal
	}
	if total <= 0 {
		// Nothing to weight by; pin the whole discount on the last item.
		shares[len(shares)-1] = discount
		return shares
	}

	var allocated int64
	for i, item := range ordered {
		share := discount * item.Subtotal / total
		shares[i] = share
		allocated += share
	}
	shares[len(shares)-1] += discount - allocated
	return shares
}
