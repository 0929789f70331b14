package checkout

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/apperr"
	"ms-booking/internal/catalog"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/google/uuid"
)

// IntentTTL is how long a checkout intent stays payable.
const IntentTTL = 24 * time.Hour

// DBLayer is the intent storage surface.
type DBLayer interface {
	CreateIntent(ctx context.Context, intent *models.CheckoutIntent) error
	GetIntent(ctx context.Context, intentID string) (*models.CheckoutIntent, error)
	SetPaymentID(ctx context.Context, intentID, paymentID string) error
	TransitionStatus(ctx context.Context, intentID string, from, to models.IntentStatus) (bool, error)
	EvictExpired(ctx context.Context, now time.Time) (int64, error)
}

// CartStore is the read-only cart access the intent manager needs.
type CartStore interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	GetItems(ctx context.Context, cartID string) ([]models.CartItem, error)
	GetDraft(ctx context.Context, userID string) (*models.DraftCart, error)
}

// TTLStore arms the Redis-side eviction key for new intents.
type TTLStore interface {
	ArmIntentTTL(ctx context.Context, intentID string, ttl time.Duration) error
}

// CouponValidator is the hook for the external coupon collaborator. The
// default implementation passes the discount through as zero; coupon
// business rules live elsewhere.
type CouponValidator interface {
	Discount(ctx context.Context, code string, subtotal int64) (int64, error)
}

// PassthroughCoupons is the stub CouponValidator.
type PassthroughCoupons struct{}

func (PassthroughCoupons) Discount(ctx context.Context, code string, subtotal int64) (int64, error) {
	return 0, nil
}

// CheckoutService freezes cart/draft state into immutable, time-limited
// checkout intents.
type CheckoutService struct {
	DB      DBLayer
	Cart    CartStore
	Catalog catalog.Accessor
	TTL     TTLStore
	Coupons CouponValidator
	logger  *logger.Logger
}

func NewCheckoutService(db DBLayer, cart CartStore, cat catalog.Accessor, ttl TTLStore, coupons CouponValidator, log *logger.Logger) *CheckoutService {
	if coupons == nil {
		coupons = PassthroughCoupons{}
	}
	return &CheckoutService{DB: db, Cart: cart, Catalog: cat, TTL: ttl, Coupons: coupons, logger: log}
}

// FromCart builds an intent over the cart items flagged for checkout. Item
// snapshots are copied verbatim from their stored form; there is no
// re-pricing at intent time.
func (s *CheckoutService) FromCart(ctx context.Context, userID, couponCode string) (*models.CheckoutIntent, error) {
	cart, err := s.Cart.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.Cart.GetItems(ctx, cart.CartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}

	var frozen []models.CheckoutItem
	var subtotal int64
	for _, item := range items {
		if !item.IsCheckedOut {
			continue
		}
		frozen = append(frozen, s.freezeCartItem(item))
		subtotal += item.Subtotal
	}
	if len(frozen) == 0 {
		return nil, apperr.ErrEmptySelection
	}

	return s.createIntent(ctx, userID, models.IntentSourceCart, cart.CartID, frozen, subtotal, couponCode)
}

// FromDraft builds a single-item intent straight from the draft, bypassing
// the cart.
func (s *CheckoutService) FromDraft(ctx context.Context, userID, couponCode string) (*models.CheckoutIntent, error) {
	draft, err := s.Cart.GetDraft(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !draft.Complete() {
		return nil, apperr.ErrIncompleteDraft
	}

	item := models.CheckoutItem{
		ItemID:           uuid.NewString(),
		ItemIndex:        1,
		EventID:          draft.EventID,
		EventCategory:    draft.EventCategory,
		EventTitle:       draft.EventTitle,
		BannerImage:      s.resolveBanner(draft.EventCategory, draft.EventID),
		SelectedTier:     draft.SelectedTier,
		Addons:           draft.Addons,
		EventBookingDate: draft.EventBookingDate,
		AddressSnapshot:  draft.AddressSnapshot,
		Subtotal:         draft.Subtotal,
	}

	return s.createIntent(ctx, userID, models.IntentSourceDirect, "", []models.CheckoutItem{item}, draft.Subtotal, couponCode)
}

// Get returns an intent to its owner. Ownership mismatches are reported as
// not-found so intent IDs cannot be guessed.
func (s *CheckoutService) Get(ctx context.Context, intentID, userID string) (*models.CheckoutIntent, error) {
	intent, err := s.DB.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.UserID != userID {
		s.logger.LogSecurity("OWNERSHIP", fmt.Sprintf("User %s requested intent %s owned by another user", userID, intentID))
		return nil, apperr.ErrNotFound
	}
	return intent, nil
}

// EvictExpired runs the storage-side TTL sweep.
func (s *CheckoutService) EvictExpired(ctx context.Context) (int64, error) {
	n, err := s.DB.EvictExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("CHECKOUT", fmt.Sprintf("Expired %d abandoned checkout intents", n))
	}
	return n, nil
}

func (s *CheckoutService) createIntent(ctx context.Context, userID string, source models.IntentSource, cartID string, items []models.CheckoutItem, subtotal int64, couponCode string) (*models.CheckoutIntent, error) {
	discount := int64(0)
	if couponCode != "" {
		var err error
		discount, err = s.Coupons.Discount(ctx, couponCode, subtotal)
		if err != nil {
			return nil, fmt.Errorf("coupon validation failed: %w", err)
		}
		if discount > subtotal {
			discount = subtotal
		}
	}

	now := time.Now().UTC()
	intent := &models.CheckoutIntent{
		IntentID:    uuid.NewString(),
		UserID:      userID,
		Source:      source,
		CartID:      cartID,
		Items:       items,
		Subtotal:    subtotal,
		Discount:    discount,
		TotalAmount: subtotal - discount,
		CouponCode:  couponCode,
		Status:      models.IntentPending,
		ExpiresAt:   now.Add(IntentTTL),
		CreatedAt:   now,
	}

	if err := s.DB.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to create checkout intent: %w", err)
	}

	if err := s.TTL.ArmIntentTTL(ctx, intent.IntentID, IntentTTL); err != nil {
		// The expires_at sweep still covers eviction; losing the Redis key
		// only delays it.
		s.logger.Error("CHECKOUT", fmt.Sprintf("Failed to arm TTL for intent %s: %v", intent.IntentID, err))
	}

	s.logger.Info("CHECKOUT", fmt.Sprintf("Created %s intent %s for user %s (total %d)", source, intent.IntentID, userID, intent.TotalAmount))
	return intent, nil
}

func (s *CheckoutService) freezeCartItem(item models.CartItem) models.CheckoutItem {
	return models.CheckoutItem{
		ItemID:           item.ItemID,
		ItemIndex:        item.ItemIndex,
		EventID:          item.EventID,
		EventCategory:    item.EventCategory,
		EventTitle:       item.EventTitle,
		BannerImage:      s.resolveBanner(item.EventCategory, item.EventID),
		SelectedTier:     item.SelectedTier,
		Addons:           item.Addons,
		EventBookingDate: item.EventBookingDate,
		AddressSnapshot:  item.AddressSnapshot,
		Subtotal:         item.Subtotal,
	}
}

// resolveBanner decorates the frozen item with catalog media. Cosmetic only:
// a catalog miss never blocks intent creation.
func (s *CheckoutService) resolveBanner(category models.EventCategory, eventID string) string {
	event, err := s.Catalog.GetEvent(category, eventID)
	if err != nil {
		s.logger.Warn("CHECKOUT", fmt.Sprintf("Banner lookup failed for %s/%s: %v", category, eventID, err))
		return ""
	}
	return event.BannerImage
}
