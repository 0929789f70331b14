package models

// EventCategory is the closed set of bookable catalog categories. Dispatch on
// a category must go through the catalog accessor table, never by string
// comparison against free-form input.
type EventCategory string

const (
	CategoryBirthdayEvent     EventCategory = "BirthdayEvent"
	CategoryExperientialEvent EventCategory = "ExperientialEvent"
	CategoryAddOn             EventCategory = "AddOn"
)

// Valid reports whether c is one of the known categories.
func (c EventCategory) Valid() bool {
	switch c {
	case CategoryBirthdayEvent, CategoryExperientialEvent, CategoryAddOn:
		return true
	}
	return false
}

func (c EventCategory) String() string {
	return string(c)
}

// TierSnapshot is an immutable copy of a catalog tier taken at selection
// time. It is stored as a value on carts, intents and orders and is never
// re-resolved from the catalog, so later price changes cannot alter it.
type TierSnapshot struct {
	TierID   string   `json:"tier_id"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	Features []string `json:"features,omitempty"`
}

// AddonSnapshot captures an add-on and the tier it was selected at.
type AddonSnapshot struct {
	AddonID      string       `json:"addon_id"`
	Name         string       `json:"name"`
	SelectedTier TierSnapshot `json:"selected_tier"`
	VendorID     string       `json:"vendor_id,omitempty"`
}

// AddressSnapshot is the delivery/venue address frozen onto a booking.
type AddressSnapshot struct {
	AddressID string `json:"address_id"`
	Line1     string `json:"line1"`
	Line2     string `json:"line2,omitempty"`
	City      string `json:"city"`
	Pincode   string `json:"pincode"`
	Landmark  string `json:"landmark,omitempty"`
}

// CatalogEvent is the read-only view of a catalog entry the booking core
// needs: pricing inputs and scheduling limits. Everything else about the
// catalog lives in the catalog service.
type CatalogEvent struct {
	EventID           string         `json:"event_id"`
	Category          EventCategory  `json:"category"`
	Title             string         `json:"title"`
	BannerImage       string         `json:"banner_image,omitempty"`
	DiscountPercent   float64        `json:"discount_percent"`
	Tiers             []TierSnapshot `json:"tiers"`
	MaxBookingsPerDay map[string]int `json:"max_bookings_per_day"` // keyed by city
}

// Tier returns the tier with the given ID, or nil if the event has none.
func (e *CatalogEvent) Tier(tierID string) *TierSnapshot {
	for i := range e.Tiers {
		if e.Tiers[i].TierID == tierID {
			return &e.Tiers[i]
		}
	}
	return nil
}

// DailyLimit returns the per-day booking cap for a city. Zero means the
// catalog placed no limit on that city.
func (e *CatalogEvent) DailyLimit(city string) int {
	if e.MaxBookingsPerDay == nil {
		return 0
	}
	return e.MaxBookingsPerDay[city]
}
