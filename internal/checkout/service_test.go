package checkout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-booking/internal/apperr"
	"ms-booking/internal/catalog"
	"ms-booking/internal/checkout"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations

type MockDB struct {
	mock.Mock
}

func (m *MockDB) CreateIntent(ctx context.Context, intent *models.CheckoutIntent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func (m *MockDB) GetIntent(ctx context.Context, intentID string) (*models.CheckoutIntent, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckoutIntent), args.Error(1)
}

func (m *MockDB) SetPaymentID(ctx context.Context, intentID, paymentID string) error {
	args := m.Called(ctx, intentID, paymentID)
	return args.Error(0)
}

func (m *MockDB) TransitionStatus(ctx context.Context, intentID string, from, to models.IntentStatus) (bool, error) {
	args := m.Called(ctx, intentID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockDB) EvictExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockCartStore struct {
	mock.Mock
}

func (m *MockCartStore) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Cart), args.Error(1)
}

func (m *MockCartStore) GetItems(ctx context.Context, cartID string) ([]models.CartItem, error) {
	args := m.Called(ctx, cartID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CartItem), args.Error(1)
}

func (m *MockCartStore) GetDraft(ctx context.Context, userID string) (*models.DraftCart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DraftCart), args.Error(1)
}

type MockTTLStore struct {
	mock.Mock
}

func (m *MockTTLStore) ArmIntentTTL(ctx context.Context, intentID string, ttl time.Duration) error {
	args := m.Called(ctx, intentID, ttl)
	return args.Error(0)
}

type MockCoupons struct {
	mock.Mock
}

func (m *MockCoupons) Discount(ctx context.Context, code string, subtotal int64) (int64, error) {
	args := m.Called(ctx, code, subtotal)
	return args.Get(0).(int64), args.Error(1)
}

// Helpers

func testCatalog() *catalog.Static {
	return catalog.NewStatic(&models.CatalogEvent{
		EventID:     "evt_1",
		Category:    models.CategoryBirthdayEvent,
		Title:       "Birthday Bash",
		BannerImage: "https://cdn.example.com/evt_1.png",
	})
}

func newService(db *MockDB, cart *MockCartStore, ttl *MockTTLStore, coupons checkout.CouponValidator) *checkout.CheckoutService {
	return checkout.NewCheckoutService(db, cart, testCatalog(), ttl, coupons, logger.NewLogger())
}

func addr() *models.AddressSnapshot {
	return &models.AddressSnapshot{AddressID: "addr_1", Line1: "12 MG Road", City: "Bengaluru", Pincode: "560001"}
}

func cartItems() []models.CartItem {
	return []models.CartItem{
		{
			ItemID:           "item_1",
			ItemIndex:        1,
			EventID:          "evt_1",
			EventCategory:    models.CategoryBirthdayEvent,
			EventTitle:       "Birthday Bash",
			SelectedTier:     models.TierSnapshot{TierID: "tier_gold", Name: "Gold", Price: 5000},
			EventBookingDate: time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC),
			AddressSnapshot:  addr(),
			Subtotal:         7000,
			IsCheckedOut:     true,
		},
		{
			ItemID:        "item_2",
			ItemIndex:     2,
			EventID:       "evt_2",
			EventCategory: models.CategoryExperientialEvent,
			EventTitle:    "Pottery Workshop",
			Subtotal:      3000,
			IsCheckedOut:  false,
		},
		{
			ItemID:           "item_3",
			ItemIndex:        3,
			EventID:          "evt_3",
			EventCategory:    models.CategoryExperientialEvent,
			EventTitle:       "Wine Tasting",
			SelectedTier:     models.TierSnapshot{TierID: "tier_std", Name: "Standard", Price: 2500},
			EventBookingDate: time.Date(2026, time.September, 12, 0, 0, 0, 0, time.UTC),
			AddressSnapshot:  addr(),
			Subtotal:         2500,
			IsCheckedOut:     true,
		},
	}
}

func completeDraft() *models.DraftCart {
	return &models.DraftCart{
		UserID:           "user_1",
		EventID:          "evt_1",
		EventCategory:    models.CategoryBirthdayEvent,
		EventTitle:       "Birthday Bash",
		SelectedTier:     models.TierSnapshot{TierID: "tier_gold", Name: "Gold", Price: 5000},
		EventBookingDate: time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC),
		AddressSnapshot:  addr(),
		Subtotal:         5000,
	}
}

// Tests

func TestFromCart_FreezesSelectedItems(t *testing.T) {
	db := new(MockDB)
	cart := new(MockCartStore)
	ttl := new(MockTTLStore)
	svc := newService(db, cart, ttl, nil)

	cart.On("GetCart", mock.Anything, "user_1").Return(&models.Cart{CartID: "cart_1", UserID: "user_1"}, nil)
	cart.On("GetItems", mock.Anything, "cart_1").Return(cartItems(), nil)

	var created *models.CheckoutIntent
	db.On("CreateIntent", mock.Anything, mock.AnythingOfType("*models.CheckoutIntent")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*models.CheckoutIntent) }).
		Return(nil)
	ttl.On("ArmIntentTTL", mock.Anything, mock.AnythingOfType("string"), checkout.IntentTTL).Return(nil)

	intent, err := svc.FromCart(context.Background(), "user_1", "")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, created.IntentID, intent.IntentID)

	// Only the flagged items are frozen; the unflagged one stays behind.
	require.Len(t, intent.Items, 2)
	assert.Equal(t, "item_1", intent.Items[0].ItemID)
	assert.Equal(t, "item_3", intent.Items[1].ItemID)
	assert.Equal(t, int64(9500), intent.Subtotal)
	assert.Equal(t, int64(9500), intent.TotalAmount)
	assert.Equal(t, models.IntentSourceCart, intent.Source)
	assert.Equal(t, "cart_1", intent.CartID)
	assert.Equal(t, models.IntentPending, intent.Status)

	// Banner is resolved from the catalog where it exists.
	assert.Equal(t, "https://cdn.example.com/evt_1.png", intent.Items[0].BannerImage)
	assert.Empty(t, intent.Items[1].BannerImage)

	// The payment window is a day out.
	assert.WithinDuration(t, time.Now().UTC().Add(checkout.IntentTTL), intent.ExpiresAt, 5*time.Second)
	ttl.AssertExpectations(t)
}

func TestFromCart_NothingSelected(t *testing.T) {
	db := new(MockDB)
	cart := new(MockCartStore)
	ttl := new(MockTTLStore)
	svc := newService(db, cart, ttl, nil)

	items := cartItems()
	for i := range items {
		items[i].IsCheckedOut = false
	}
	cart.On("GetCart", mock.Anything, "user_1").Return(&models.Cart{CartID: "cart_1", UserID: "user_1"}, nil)
	cart.On("GetItems", mock.Anything, "cart_1").Return(items, nil)

	_, err := svc.FromCart(context.Background(), "user_1", "")
	assert.ErrorIs(t, err, apperr.ErrEmptySelection)
	db.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)
}

func TestFromCart_CouponDiscountApplied(t *testing.T) {
	db := new(MockDB)
	cart := new(MockCartStore)
	ttl := new(MockTTLStore)
	coupons := new(MockCoupons)
	svc := newService(db, cart, ttl, coupons)

	cart.On("GetCart", mock.Anything, "user_1").Return(&models.Cart{CartID: "cart_1", UserID: "user_1"}, nil)
	cart.On("GetItems", mock.Anything, "cart_1").Return(cartItems(), nil)
	coupons.On("Discount", mock.Anything, "FEST10", int64(9500)).Return(int64(950), nil)
	db.On("CreateIntent", mock.Anything, mock.Anything).Return(nil)
	ttl.On("ArmIntentTTL", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	intent, err := svc.FromCart(context.Background(), "user_1", "FEST10")
	require.NoError(t, err)
	assert.Equal(t, int64(950), intent.Discount)
	assert.Equal(t, int64(8550), intent.TotalAmount)
	assert.Equal(t, "FEST10", intent.CouponCode)
}

func TestFromCart_DiscountClampedToSubtotal(t *testing.T) {
	db := new(MockDB)
	cart := new(MockCartStore)
	ttl := new(MockTTLStore)
	coupons := new(MockCoupons)
	svc := newService(db, cart, ttl, coupons)

	cart.On("GetCart", mock.Anything, "user_1").Return(&models.Cart{CartID: "cart_1", UserID: "user_1"}, nil)
	cart.On("GetItems", mock.Anything, "cart_1").Return(cartItems(), nil)
	coupons.On("Discount", mock.Anything, "MEGA", int64(9500)).Return(int64(50000), nil)
	db.On("CreateIntent", mock.Anything, mock.Anything).Return(nil)
	ttl.On("ArmIntentTTL", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	intent, err := svc.FromCart(context.Background(), "user_1", "MEGA")
	require.NoError(t, err)
	assert.Equal(t, int64(9500), intent.Discount)
	assert.Equal(t, int64(0), intent.TotalAmount)
}

func TestFromCart_CouponFailureBlocksIntent(t *testing.T) {
	db := new(MockDB)
	cart := new(MockCartStore)
	ttl := new(MockTTLStore)
	coupons := new(MockCoupons)
	svc := newService(db, cart, ttl, coupons)

	cart.On("GetCart", mock.Anything, "user_1").Return(&models.Cart{CartID: "cart_1", UserID: "user_1"}, nil)
	cart.On("GetItems", mock.Anything, "cart_1").Return(cartItems(), nil)
	coupons.On("Discount", mock.Anything, "BAD", int64(9500)).Return(int64(0), errors.New("coupon service down"))

	_, err := svc.FromCart(context.Background(), "user_1", "BAD")
	assert.Error(t, err)
	db.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)
}

func TestFromCart_TTLFailureIsTolerated(t *testing.T) {
	db := new(MockDB)
	cart := new(MockCartStore)
	ttl := new(MockTTLStore)
	svc := newService(db, cart, ttl, nil)

	cart.On("GetCart", mock.Anything, "user_1").Return(&models.Cart{CartID: "cart_1", UserID: "user_1"}, nil)
	cart.On("GetItems", mock.Anything, "cart_1").Return(cartItems(), nil)
	db.On("CreateIntent", mock.Anything, mock.Anything).Return(nil)
	ttl.On("ArmIntentTTL", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	// The expires_at sweep still evicts; a lost Redis key is not fatal.
	intent, err := svc.FromCart(context.Background(), "user_1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, intent.IntentID)
}

func TestFromDraft_SingleItemIntent(t *testing.T) {
	db := new(MockDB)
	cart := new(MockCartStore)
	ttl := new(MockTTLStore)
	svc := newService(db, cart, ttl, nil)

	cart.On("GetDraft", mock.Anything, "user_1").Return(completeDraft(), nil)
	db.On("CreateIntent", mock.Anything, mock.Anything).Return(nil)
	ttl.On("ArmIntentTTL", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	intent, err := svc.FromDraft(context.Background(), "user_1", "")
	require.NoError(t, err)
	require.Len(t, intent.Items, 1)
	assert.Equal(t, models.IntentSourceDirect, intent.Source)
	assert.Empty(t, intent.CartID)
	assert.Equal(t, 1, intent.Items[0].ItemIndex)
	assert.Equal(t, "evt_1", intent.Items[0].EventID)
	assert.Equal(t, int64(5000), intent.Subtotal)
	assert.Equal(t, "https://cdn.example.com/evt_1.png", intent.Items[0].BannerImage)
}

func TestFromDraft_IncompleteDraftRejected(t *testing.T) {
	db := new(MockDB)
	cart := new(MockCartStore)
	ttl := new(MockTTLStore)
	svc := newService(db, cart, ttl, nil)

	draft := completeDraft()
	draft.AddressSnapshot = nil
	cart.On("GetDraft", mock.Anything, "user_1").Return(draft, nil)

	_, err := svc.FromDraft(context.Background(), "user_1", "")
	assert.ErrorIs(t, err, apperr.ErrIncompleteDraft)
	db.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything)
}

func TestGet_MasksForeignIntent(t *testing.T) {
	db := new(MockDB)
	cart := new(MockCartStore)
	ttl := new(MockTTLStore)
	svc := newService(db, cart, ttl, nil)

	db.On("GetIntent", mock.Anything, "intent_1").Return(&models.CheckoutIntent{
		IntentID: "intent_1",
		UserID:   "someone_else",
		Status:   models.IntentPending,
	}, nil)

	_, err := svc.Get(context.Background(), "intent_1", "user_1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGet_ReturnsOwnIntent(t *testing.T) {
	db := new(MockDB)
	cart := new(MockCartStore)
	ttl := new(MockTTLStore)
	svc := newService(db, cart, ttl, nil)

	db.On("GetIntent", mock.Anything, "intent_1").Return(&models.CheckoutIntent{
		IntentID: "intent_1",
		UserID:   "user_1",
		Status:   models.IntentPending,
	}, nil)

	intent, err := svc.Get(context.Background(), "intent_1", "user_1")
	require.NoError(t, err)
	assert.Equal(t, "intent_1", intent.IntentID)
}
