package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Cart is the per-user working cart. A user has at most one cart row; items
// hang off it as cart_items rows.
type Cart struct {
	bun.BaseModel `bun:"table:carts"`

	CartID    string    `bun:"cart_id,pk" json:"cart_id"`
	UserID    string    `bun:"user_id,unique,notnull" json:"user_id"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

// CartItem is one event selection inside a cart. All pricing fields are
// denormalized snapshots captured at mutation time; subtotal is stored, not
// derived at read time.
type CartItem struct {
	bun.BaseModel `bun:"table:cart_items"`

	ItemID          string           `bun:"item_id,pk" json:"item_id"`
	CartID          string           `bun:"cart_id,notnull" json:"cart_id"`
	UserID          string           `bun:"user_id,notnull" json:"user_id"`
	EventID         string           `bun:"event_id,notnull" json:"event_id"`
	EventCategory   EventCategory    `bun:"event_category,notnull" json:"event_category"`
	EventTitle      string           `bun:"event_title" json:"event_title"`
	SelectedTier    TierSnapshot     `bun:"selected_tier,type:jsonb" json:"selected_tier"`
	Addons          []AddonSnapshot  `bun:"addons,type:jsonb" json:"addons"`
	EventDate       string           `bun:"event_date,nullzero" json:"event_date,omitempty"` // YYYY-MM-DD
	EventTime       string           `bun:"event_time,nullzero" json:"event_time,omitempty"` // HH:MM
	EventBookingDate time.Time       `bun:"event_booking_date,nullzero" json:"event_booking_date,omitempty"`
	AddressID       string           `bun:"address_id,nullzero" json:"address_id,omitempty"`
	AddressSnapshot *AddressSnapshot `bun:"address_snapshot,type:jsonb,nullzero" json:"address_snapshot,omitempty"`
	// City is denormalized out of the address snapshot so capacity queries
	// can index on it.
	City         string `bun:"city,nullzero" json:"city,omitempty"`
	Subtotal     int64  `bun:"subtotal,notnull" json:"subtotal"`
	PlannerPrice int64  `bun:"planner_price,nullzero" json:"planner_price,omitempty"`
	IsCheckedOut bool   `bun:"is_checked_out" json:"is_checked_out"`
	// ItemIndex is assigned once at insert and never reused; it is the
	// stable ordering key for discount remainder assignment downstream.
	ItemIndex int       `bun:"item_index,notnull" json:"item_index"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}

// DraftCart is the single-item staging area a user configures before
// committing to the cart. One row per user, replaced wholesale when the user
// switches events.
type DraftCart struct {
	bun.BaseModel `bun:"table:draft_carts"`

	UserID          string           `bun:"user_id,pk" json:"user_id"`
	EventID         string           `bun:"event_id,notnull" json:"event_id"`
	EventCategory   EventCategory    `bun:"event_category,notnull" json:"event_category"`
	EventTitle      string           `bun:"event_title" json:"event_title"`
	SelectedTier    TierSnapshot     `bun:"selected_tier,type:jsonb" json:"selected_tier"`
	Addons          []AddonSnapshot  `bun:"addons,type:jsonb" json:"addons"`
	EventDate       string           `bun:"event_date,nullzero" json:"event_date,omitempty"`
	EventTime       string           `bun:"event_time,nullzero" json:"event_time,omitempty"`
	EventBookingDate time.Time       `bun:"event_booking_date,nullzero" json:"event_booking_date,omitempty"`
	AddressID       string           `bun:"address_id,nullzero" json:"address_id,omitempty"`
	AddressSnapshot *AddressSnapshot `bun:"address_snapshot,type:jsonb,nullzero" json:"address_snapshot,omitempty"`
	City            string           `bun:"city,nullzero" json:"city,omitempty"`
	Subtotal        int64            `bun:"subtotal,notnull" json:"subtotal"`
	PlannerPrice    int64            `bun:"planner_price,nullzero" json:"planner_price,omitempty"`
	CreatedAt       time.Time        `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time        `bun:"updated_at,nullzero" json:"updated_at"`
}

// Complete reports whether the draft carries everything promotion and
// direct checkout require: a tier, an address and a schedule.
func (d *DraftCart) Complete() bool {
	return d.SelectedTier.TierID != "" && d.AddressSnapshot != nil && !d.EventBookingDate.IsZero()
}
