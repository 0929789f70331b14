package models

import (
	"time"

	"github.com/uptrace/bun"
)

type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentPaid      IntentStatus = "paid"
	IntentCompleted IntentStatus = "completed"
	IntentFailed    IntentStatus = "failed"
	IntentExpired   IntentStatus = "expired"
)

// IsTerminal reports whether the intent can no longer move.
func (s IntentStatus) IsTerminal() bool {
	return s == IntentCompleted || s == IntentFailed || s == IntentExpired
}

// CanTransitionTo enumerates the legal intent status moves.
func (s IntentStatus) CanTransitionTo(next IntentStatus) bool {
	switch s {
	case IntentPending:
		return next == IntentPaid || next == IntentFailed || next == IntentExpired
	case IntentPaid:
		return next == IntentCompleted || next == IntentFailed
	default:
		return false
	}
}

type IntentSource string

const (
	IntentSourceCart   IntentSource = "cart"
	IntentSourceDirect IntentSource = "direct"
)

// CheckoutItem is the price-frozen view of one line item inside an intent.
// Copied verbatim from the cart/draft snapshot at intent creation; never
// re-priced afterwards.
type CheckoutItem struct {
	ItemID          string           `json:"item_id"`
	ItemIndex       int              `json:"item_index"`
	EventID         string           `json:"event_id"`
	EventCategory   EventCategory    `json:"event_category"`
	EventTitle      string           `json:"event_title"`
	BannerImage     string           `json:"banner_image,omitempty"`
	SelectedTier    TierSnapshot     `json:"selected_tier"`
	Addons          []AddonSnapshot  `json:"addons,omitempty"`
	EventBookingDate time.Time       `json:"event_booking_date"`
	AddressSnapshot *AddressSnapshot `json:"address_snapshot,omitempty"`
	Subtotal        int64            `json:"subtotal"`
}

// CheckoutIntent is an immutable, time-limited record of what a user is
// about to pay for. Only Status, PaymentID and OrderBatchID mutate after
// creation, and only through the reconciliation and fulfillment paths.
type CheckoutIntent struct {
	bun.BaseModel `bun:"table:checkout_intents"`

	IntentID    string         `bun:"intent_id,pk" json:"intent_id"`
	UserID      string         `bun:"user_id,notnull" json:"user_id"`
	Source      IntentSource   `bun:"source,notnull" json:"source"`
	CartID      string         `bun:"cart_id,nullzero" json:"cart_id,omitempty"`
	Items       []CheckoutItem `bun:"items,type:jsonb" json:"items"`
	Subtotal    int64          `bun:"subtotal,notnull" json:"subtotal"`
	Discount    int64          `bun:"discount" json:"discount"`
	TotalAmount int64          `bun:"total_amount,notnull" json:"total_amount"`
	CouponCode  string         `bun:"coupon_code,nullzero" json:"coupon_code,omitempty"`
	PaymentID   string         `bun:"payment_id,nullzero" json:"payment_id,omitempty"`
	Status      IntentStatus   `bun:"status,notnull" json:"status"`
	OrderBatchID string        `bun:"order_batch_id,nullzero" json:"order_batch_id,omitempty"`
	ExpiresAt   time.Time      `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt   time.Time      `bun:"created_at,notnull" json:"created_at"`
}

// Expired reports whether the intent's payment window has passed.
func (i *CheckoutIntent) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
