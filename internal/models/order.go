package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
	OrderDelivered OrderStatus = "delivered"
)

// Order is the durable record created once payment for an intent is
// confirmed. Immutable after creation in this core; status transitions go
// through a separate admin path.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID          string           `bun:"order_id,pk" json:"order_id"`
	UserID           string           `bun:"user_id,notnull" json:"user_id"`
	CheckoutIntentID string           `bun:"checkout_intent_id,nullzero" json:"checkout_intent_id,omitempty"`
	CheckoutBatchID  string           `bun:"checkout_batch_id,notnull" json:"checkout_batch_id"`
	OrderNumber      string           `bun:"order_number,unique,notnull" json:"order_number"`
	EventID          string           `bun:"event_id,notnull" json:"event_id"`
	EventCategory    EventCategory    `bun:"event_category,notnull" json:"event_category"`
	EventTitle       string           `bun:"event_title" json:"event_title"`
	SelectedTier     TierSnapshot     `bun:"selected_tier,type:jsonb" json:"selected_tier"`
	Addons           []AddonSnapshot  `bun:"addons,type:jsonb" json:"addons,omitempty"`
	BaseAmount       int64            `bun:"base_amount,notnull" json:"base_amount"`
	AddonsAmount     int64            `bun:"addons_amount" json:"addons_amount"`
	Subtotal         int64            `bun:"subtotal,notnull" json:"subtotal"`
	Discount         int64            `bun:"discount" json:"discount"`
	TotalAmount      int64            `bun:"total_amount,notnull" json:"total_amount"`
	Status           OrderStatus      `bun:"status,notnull" json:"status"`
	PaymentID        string           `bun:"payment_id,nullzero" json:"payment_id,omitempty"`
	EventBookingDate time.Time        `bun:"event_booking_date,nullzero" json:"event_booking_date,omitempty"`
	AddressSnapshot  *AddressSnapshot `bun:"address_snapshot,type:jsonb,nullzero" json:"address_snapshot,omitempty"`
	City             string           `bun:"city,nullzero" json:"city,omitempty"`
	CreatedAt        time.Time        `bun:"created_at,notnull" json:"created_at"`
}

// OrderSummary is the per-order slice of a booking.confirmed event.
type OrderSummary struct {
	OrderID          string    `json:"order_id"`
	OrderNumber      string    `json:"order_number"`
	EventTitle       string    `json:"event_title"`
	EventBookingDate time.Time `json:"event_booking_date,omitempty"`
	TotalAmount      int64     `json:"total_amount"`
	ConfirmationQR   string    `json:"confirmation_qr,omitempty"` // base64 PNG
}

// BookingConfirmedEvent is published after the fulfillment transaction
// commits, never before.
type BookingConfirmedEvent struct {
	CheckoutBatchID string         `json:"checkout_batch_id"`
	UserID          string         `json:"user_id"`
	BookingDetails  []OrderSummary `json:"booking_details"`
	BookingSummary  string         `json:"booking_summary"`
	TotalAmount     int64          `json:"total_amount"`
	ConfirmedAt     time.Time      `json:"confirmed_at"`
}

// AlertEvent carries operational alerts to the notification collaborators.
type AlertEvent struct {
	Severity    string    `json:"severity"`
	Source      string    `json:"source"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Message     string    `json:"message"`
	At          time.Time `json:"at"`
}
