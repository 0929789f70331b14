package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/apperr"
	"ms-booking/internal/catalog"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/pricing"
	"ms-booking/internal/utils"

	"github.com/google/uuid"
)

// DBLayer is the storage surface the cart service needs.
type DBLayer interface {
	GetDraft(ctx context.Context, userID string) (*models.DraftCart, error)
	SaveDraft(ctx context.Context, draft *models.DraftCart) error
	DeleteDraft(ctx context.Context, userID string) error

	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	GetOrCreateCart(ctx context.Context, userID, cartID string) (*models.Cart, error)
	GetItems(ctx context.Context, cartID string) ([]models.CartItem, error)
	GetItemByEvent(ctx context.Context, cartID, eventID string) (*models.CartItem, error)
	InsertItem(ctx context.Context, item *models.CartItem) error
	UpdateItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID string) error
	MaxItemIndex(ctx context.Context, cartID string) (int, error)
	MarkCheckedOut(ctx context.Context, cartID string, itemIDs []string, checked bool) (int64, error)

	CountConfirmedBookings(ctx context.Context, eventID, city string, dayStart, dayEnd time.Time) (int, error)
}

// CartService owns the mutable per-user working state: the multi-item cart
// and the single-item draft. Every mutation re-prices through the pricing
// engine with the catalog values authoritative at that moment and stores the
// result.
type CartService struct {
	DB      DBLayer
	Catalog catalog.Accessor
	logger  *logger.Logger
}

func NewCartService(db DBLayer, cat catalog.Accessor, log *logger.Logger) *CartService {
	return &CartService{DB: db, Catalog: cat, logger: log}
}

// ---------------- DRAFT ----------------

// SetDraftEvent replaces the user's draft with a fresh selection. Switching
// events drops add-ons, schedule, address and planner price: stale selections
// must not survive an event change.
func (s *CartService) SetDraftEvent(ctx context.Context, userID string, category models.EventCategory, eventID, tierID string) (*models.DraftCart, error) {
	if !category.Valid() {
		return nil, apperr.NewValidation("event_category", fmt.Sprintf("unknown category %q", category))
	}

	event, err := s.Catalog.GetEvent(category, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve event %s: %w", eventID, err)
	}
	tier := event.Tier(tierID)
	if tier == nil {
		return nil, apperr.NewValidation("tier_id", fmt.Sprintf("event %s has no tier %s", eventID, tierID))
	}

	now := time.Now().UTC()
	draft := &models.DraftCart{
		UserID:        userID,
		EventID:       event.EventID,
		EventCategory: event.Category,
		EventTitle:    event.Title,
		SelectedTier:  *tier,
		Subtotal:      pricing.ComputeSubtotal(*tier, nil, event.DiscountPercent),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.DB.SaveDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	s.logger.Info("CART", fmt.Sprintf("Draft set to event %s tier %s for user %s", eventID, tierID, userID))
	return draft, nil
}

// SetDraftAddress stamps the venue address onto the draft.
func (s *CartService) SetDraftAddress(ctx context.Context, userID string, addr models.AddressSnapshot) (*models.DraftCart, error) {
	if addr.City == "" {
		return nil, apperr.NewValidation("address.city", "city is required")
	}

	draft, err := s.DB.GetDraft(ctx, userID)
	if err != nil {
		return nil, err
	}

	draft.AddressID = addr.AddressID
	draft.AddressSnapshot = &addr
	draft.City = addr.City
	return s.persistDraft(ctx, draft)
}

// SetDraftSchedule sets the booking date after a capacity check for the
// draft's (event, city, day) triple.
func (s *CartService) SetDraftSchedule(ctx context.Context, userID, date, clock string) (*models.DraftCart, error) {
	draft, err := s.DB.GetDraft(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft.City == "" {
		return nil, apperr.NewValidation("address", "an address must be set before scheduling")
	}

	bookingDate, err := utils.CombineDateTime(date, clock)
	if err != nil {
		return nil, apperr.NewValidation("schedule", err.Error())
	}

	if err := s.checkCapacity(ctx, draft.EventID, draft.EventCategory, draft.City, bookingDate); err != nil {
		return nil, err
	}

	draft.EventDate = date
	draft.EventTime = clock
	draft.EventBookingDate = bookingDate
	return s.persistDraft(ctx, draft)
}

// AddDraftAddon snapshots an add-on at the chosen tier onto the draft. Adding
// the same add-on again replaces its tier selection.
func (s *CartService) AddDraftAddon(ctx context.Context, userID, addonID, tierID string) (*models.DraftCart, error) {
	draft, err := s.DB.GetDraft(ctx, userID)
	if err != nil {
		return nil, err
	}

	addon, err := s.Catalog.GetEvent(models.CategoryAddOn, addonID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve addon %s: %w", addonID, err)
	}
	tier := addon.Tier(tierID)
	if tier == nil {
		return nil, apperr.NewValidation("tier_id", fmt.Sprintf("addon %s has no tier %s", addonID, tierID))
	}

	snapshot := models.AddonSnapshot{
		AddonID:      addon.EventID,
		Name:         addon.Title,
		SelectedTier: *tier,
	}

	replaced := false
	for i := range draft.Addons {
		if draft.Addons[i].AddonID == addonID {
			draft.Addons[i] = snapshot
			replaced = true
			break
		}
	}
	if !replaced {
		draft.Addons = append(draft.Addons, snapshot)
	}
	return s.persistDraft(ctx, draft)
}

// RemoveDraftAddon drops an add-on from the draft.
func (s *CartService) RemoveDraftAddon(ctx context.Context, userID, addonID string) (*models.DraftCart, error) {
	draft, err := s.DB.GetDraft(ctx, userID)
	if err != nil {
		return nil, err
	}

	kept := draft.Addons[:0]
	found := false
	for _, a := range draft.Addons {
		if a.AddonID == addonID {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return nil, fmt.Errorf("addon %s not on draft: %w", addonID, apperr.ErrNotFound)
	}
	draft.Addons = kept
	return s.persistDraft(ctx, draft)
}

// GetDraft returns the user's draft.
func (s *CartService) GetDraft(ctx context.Context, userID string) (*models.DraftCart, error) {
	return s.DB.GetDraft(ctx, userID)
}

// persistDraft re-prices and saves the draft. The subtotal re-applies the
// event discount current at this mutation, mirroring the pre-persist hook on
// the original documents.
func (s *CartService) persistDraft(ctx context.Context, draft *models.DraftCart) (*models.DraftCart, error) {
	event, err := s.Catalog.GetEvent(draft.EventCategory, draft.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-resolve event %s: %w", draft.EventID, err)
	}

	draft.Subtotal = pricing.ComputeSubtotal(draft.SelectedTier, draft.Addons, event.DiscountPercent)
	draft.PlannerPrice = pricing.PlannerPrice(draft.Subtotal)
	draft.UpdatedAt = time.Now().UTC()

	if err := s.DB.SaveDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return draft, nil
}

func (s *CartService) checkCapacity(ctx context.Context, eventID string, category models.EventCategory, city string, bookingDate time.Time) error {
	event, err := s.Catalog.GetEvent(category, eventID)
	if err != nil {
		return fmt.Errorf("failed to resolve event %s: %w", eventID, err)
	}

	limit := event.DailyLimit(city)
	if limit <= 0 {
		return nil
	}

	dayStart, dayEnd := utils.DayRange(bookingDate)
	count, err := s.DB.CountConfirmedBookings(ctx, eventID, city, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("capacity lookup failed: %w", err)
	}
	if count >= limit {
		s.logger.Warn("CART", fmt.Sprintf("Capacity reached for event %s in %s on %s (%d/%d)",
			eventID, city, bookingDate.Format("2006-01-02"), count, limit))
		return apperr.ErrCapacityExceeded
	}
	return nil
}

// ---------------- PROMOTION ----------------

// PromoteDraft commits the draft into the cart as a full item. The draft must
// be complete (tier, address, schedule). If the cart already holds an item
// for the same event, the caller must pass forceUpdate to overwrite it.
func (s *CartService) PromoteDraft(ctx context.Context, userID string, forceUpdate bool) (*models.CartItem, error) {
	draft, err := s.DB.GetDraft(ctx, userID)
	if err != nil {
		return nil, err
	}
	if draft.SelectedTier.TierID == "" {
		return nil, apperr.NewValidation("tier", "draft has no tier selected")
	}
	if draft.AddressSnapshot == nil {
		return nil, apperr.NewValidation("address", "draft has no address")
	}
	if draft.EventBookingDate.IsZero() {
		return nil, apperr.NewValidation("schedule", "draft has no schedule")
	}

	cart, err := s.DB.GetOrCreateCart(ctx, userID, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	now := time.Now().UTC()
	item := &models.CartItem{
		CartID:           cart.CartID,
		UserID:           userID,
		EventID:          draft.EventID,
		EventCategory:    draft.EventCategory,
		EventTitle:       draft.EventTitle,
		SelectedTier:     draft.SelectedTier,
		Addons:           draft.Addons,
		EventDate:        draft.EventDate,
		EventTime:        draft.EventTime,
		EventBookingDate: draft.EventBookingDate,
		AddressID:        draft.AddressID,
		AddressSnapshot:  draft.AddressSnapshot,
		City:             draft.City,
		Subtotal:         draft.Subtotal,
		PlannerPrice:     draft.PlannerPrice,
		UpdatedAt:        now,
	}

	existing, err := s.DB.GetItemByEvent(ctx, cart.CartID, draft.EventID)
	switch {
	case err == nil:
		if !forceUpdate {
			s.logger.Warn("CART", fmt.Sprintf("Cart already holds event %s for user %s, confirmation required", draft.EventID, userID))
			return nil, apperr.ErrConflictNeedsConfirmation
		}
		// Overwrite in place, keeping the original index and identity.
		item.ItemID = existing.ItemID
		item.ItemIndex = existing.ItemIndex
		item.CreatedAt = existing.CreatedAt
		if err := s.DB.UpdateItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to update cart item: %w", err)
		}
	case errors.Is(err, apperr.ErrNotFound):
		maxIndex, err := s.DB.MaxItemIndex(ctx, cart.CartID)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate item index: %w", err)
		}
		item.ItemID = uuid.NewString()
		item.ItemIndex = maxIndex + 1
		item.CreatedAt = now
		if err := s.DB.InsertItem(ctx, item); err != nil {
			return nil, fmt.Errorf("failed to insert cart item: %w", err)
		}
	default:
		return nil, err
	}

	if err := s.DB.DeleteDraft(ctx, userID); err != nil {
		s.logger.Error("CART", fmt.Sprintf("Failed to clear draft for user %s after promotion: %v", userID, err))
	}

	s.logger.Info("CART", fmt.Sprintf("Draft promoted to cart item %s for user %s", item.ItemID, userID))
	return item, nil
}

// ---------------- CART ----------------

// GetCartWithItems returns the cart and its items in stable index order.
func (s *CartService) GetCartWithItems(ctx context.Context, userID string) (*models.Cart, []models.CartItem, error) {
	cart, err := s.DB.GetCart(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.DB.GetItems(ctx, cart.CartID)
	if err != nil {
		return nil, nil, err
	}
	return cart, items, nil
}

// SelectForCheckout marks the given items as part of the next checkout.
func (s *CartService) SelectForCheckout(ctx context.Context, userID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return apperr.ErrEmptySelection
	}
	cart, err := s.DB.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	n, err := s.DB.MarkCheckedOut(ctx, cart.CartID, itemIDs, true)
	if err != nil {
		return fmt.Errorf("failed to mark items for checkout: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	s.logger.Info("CART", fmt.Sprintf("Marked %d items for checkout in cart %s", n, cart.CartID))
	return nil
}

// RemoveItem deletes one item from the user's cart.
func (s *CartService) RemoveItem(ctx context.Context, userID, itemID string) error {
	cart, err := s.DB.GetCart(ctx, userID)
	if err != nil {
		return err
	}
	return s.DB.DeleteItem(ctx, cart.CartID, itemID)
}
