package fulfillment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ms-booking/internal/apperr"
	"ms-booking/internal/config"
	"ms-booking/internal/counter"
	fdb "ms-booking/internal/fulfillment/db"
	"ms-booking/internal/fulfillment/qr"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const lockTTL = 30 * time.Second

// Locker is the short Redis lock around one fulfillment attempt.
type Locker interface {
	LockFulfillment(ctx context.Context, intentID, token string, ttl time.Duration) (bool, error)
	UnlockFulfillment(ctx context.Context, intentID, token string) error
	DropIntentTTL(ctx context.Context, intentID string) error
}

// Publisher is the post-commit event surface.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, topic string, order models.Order) error
	PublishBookingConfirmed(ctx context.Context, topic string, event models.BookingConfirmedEvent) error
	PublishAlert(ctx context.Context, topic string, event models.AlertEvent) error
}

// Result is what one fulfillment attempt produced (or found already
// produced).
type Result struct {
	BatchID string         `json:"batch_id"`
	Orders  []models.Order `json:"orders"`
}

// Service converts paid checkout intents into immutable orders. The whole
// conversion runs in one transaction; the completed-status and
// orders-exist checks inside it are what make duplicate triggers safe.
type Service struct {
	DB       *fdb.DB
	Lock     Locker
	Producer Publisher
	QR       *qr.QRGenerator
	Topics   config.TopicConfig
	logger   *logger.Logger
}

func NewService(db *fdb.DB, lock Locker, producer Publisher, qrGen *qr.QRGenerator, topics config.TopicConfig, log *logger.Logger) *Service {
	return &Service{
		DB:       db,
		Lock:     lock,
		Producer: producer,
		QR:       qrGen,
		Topics:   topics,
		logger:   log,
	}
}

// FulfillIntent creates the order batch for a paid intent. Safe to call any
// number of times: duplicates get the existing batch and ErrIdempotentNoop.
func (s *Service) FulfillIntent(ctx context.Context, intentID string) (*Result, error) {
	token := uuid.NewString()
	locked, err := s.Lock.LockFulfillment(ctx, intentID, token, lockTTL)
	if err != nil {
		s.logger.Error("FULFILLMENT", fmt.Sprintf("Redis lock failed for intent %s: %v", intentID, err))
	}
	if locked {
		defer func() {
			if err := s.Lock.UnlockFulfillment(ctx, intentID, token); err != nil {
				s.logger.Error("FULFILLMENT", fmt.Sprintf("Failed to unlock intent %s: %v", intentID, err))
			}
		}()
	} else {
		// Proceed anyway: the row lock and existence check in the
		// transaction decide who wins.
		s.logger.Warn("FULFILLMENT", fmt.Sprintf("Intent %s is locked by another attempt, relying on transaction", intentID))
	}

	var (
		result    Result
		duplicate bool
		intent    *models.CheckoutIntent
	)

	err = s.DB.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		intent, err = s.DB.GetIntentForUpdate(ctx, tx, intentID)
		if err != nil {
			return err
		}

		if intent.Status == models.IntentCompleted {
			existing, err := s.DB.OrdersByIntentID(ctx, tx, intentID)
			if err != nil {
				return err
			}
			result = Result{BatchID: intent.OrderBatchID, Orders: existing}
			duplicate = true
			return nil
		}

		existing, err := s.DB.OrdersByIntentID(ctx, tx, intentID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			result = Result{BatchID: existing[0].CheckoutBatchID, Orders: existing}
			duplicate = true
			return nil
		}

		if intent.Status != models.IntentPaid {
			return apperr.NewValidation("intent", fmt.Sprintf("cannot fulfill intent in status %s", intent.Status))
		}

		batchID := uuid.NewString()
		orders, err := s.buildOrders(ctx, tx, intent, batchID)
		if err != nil {
			return err
		}
		if err := s.DB.InsertOrders(ctx, tx, orders); err != nil {
			return fmt.Errorf("failed to insert orders: %w", err)
		}

		if intent.Source == models.IntentSourceCart {
			itemIDs := make([]string, 0, len(intent.Items))
			for _, item := range intent.Items {
				itemIDs = append(itemIDs, item.ItemID)
			}
			if err := s.DB.RemoveFulfilledItems(ctx, tx, intent.CartID, itemIDs); err != nil {
				return fmt.Errorf("failed to clear fulfilled cart items: %w", err)
			}
		}

		moved, err := s.DB.CompleteIntent(ctx, tx, intentID, batchID)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("intent %s changed state mid-fulfillment", intentID)
		}

		result = Result{BatchID: batchID, Orders: orders}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if duplicate {
		s.logger.Info("FULFILLMENT", fmt.Sprintf("Intent %s already fulfilled as batch %s", intentID, result.BatchID))
		return &result, apperr.ErrIdempotentNoop
	}

	if err := s.Lock.DropIntentTTL(ctx, intentID); err != nil {
		s.logger.Warn("FULFILLMENT", fmt.Sprintf("Failed to drop TTL key for intent %s: %v", intentID, err))
	}

	s.logger.Info("FULFILLMENT", fmt.Sprintf("Created batch %s with %d orders for intent %s", result.BatchID, len(result.Orders), intentID))
	s.publishBatch(ctx, intent.UserID, result)
	return &result, nil
}

// OrdersForUser lists a user's orders.
func (s *Service) OrdersForUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.DB.OrdersByUserID(ctx, userID)
}

// buildOrders turns intent line items into order rows, drawing sequential
// order numbers inside the transaction. Aborting the transaction leaves gaps
// in the sequence; that is fine, order numbers only need to be unique and
// increasing.
func (s *Service) buildOrders(ctx context.Context, tx bun.Tx, intent *models.CheckoutIntent, batchID string) ([]models.Order, error) {
	items := make([]models.CheckoutItem, len(intent.Items))
	copy(items, intent.Items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ItemIndex < items[j].ItemIndex
	})

	shares := AllocateDiscount(items, intent.Discount)
	now := time.Now().UTC()

	orders := make([]models.Order, 0, len(items))
	for i, item := range items {
		orderNumber, err := counter.NextOrderNumber(ctx, tx, now)
		if err != nil {
			return nil, fmt.Errorf("failed to draw order number: %w", err)
		}

		var addonsAmount int64
		for _, addon := range item.Addons {
			addonsAmount += addon.SelectedTier.Price
		}

		city := ""
		if item.AddressSnapshot != nil {
			city = item.AddressSnapshot.City
		}

		orders = append(orders, models.Order{
			OrderID:          uuid.NewString(),
			UserID:           intent.UserID,
			CheckoutIntentID: intent.IntentID,
			CheckoutBatchID:  batchID,
			OrderNumber:      orderNumber,
			EventID:          item.EventID,
			EventCategory:    item.EventCategory,
			EventTitle:       item.EventTitle,
			SelectedTier:     item.SelectedTier,
			Addons:           item.Addons,
			BaseAmount:       item.Subtotal - addonsAmount,
			AddonsAmount:     addonsAmount,
			Subtotal:         item.Subtotal,
			Discount:         shares[i],
			TotalAmount:      item.Subtotal - shares[i],
			Status:           models.OrderConfirmed,
			PaymentID:        intent.PaymentID,
			EventBookingDate: item.EventBookingDate,
			AddressSnapshot:  item.AddressSnapshot,
			City:             city,
			CreatedAt:        now,
		})
	}
	return orders, nil
}

// publishBatch emits the post-commit events. Failures here never undo the
// orders; they are logged and alerted.
func (s *Service) publishBatch(ctx context.Context, userID string, result Result) {
	for _, order := range result.Orders {
		s.logger.LogOrder("CREATE", order.OrderID, fmt.Sprintf("%s confirmed for %s", order.OrderNumber, order.EventTitle))
		if err := s.Producer.PublishOrderCreated(ctx, s.Topics.OrderCreated, order); err != nil {
			s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish order.created for %s: %v", order.OrderID, err))
		}
	}

	event := s.confirmationEvent(userID, result)
	if err := s.Producer.PublishBookingConfirmed(ctx, s.Topics.BookingConfirmed, event); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish booking.confirmed for batch %s: %v", result.BatchID, err))
		alert := models.AlertEvent{
			Severity:    "medium",
			Source:      "fulfillment",
			ReferenceID: result.BatchID,
			Message:     fmt.Sprintf("booking.confirmed publish failed for batch %s", result.BatchID),
			At:          time.Now().UTC(),
		}
		if aerr := s.Producer.PublishAlert(ctx, s.Topics.AlertSend, alert); aerr != nil {
			s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish alert for batch %s: %v", result.BatchID, aerr))
		}
	}
}

func (s *Service) confirmationEvent(userID string, result Result) models.BookingConfirmedEvent {
	summaries := make([]models.OrderSummary, 0, len(result.Orders))
	titles := make([]string, 0, len(result.Orders))
	var total int64

	for _, order := range result.Orders {
		summary := models.OrderSummary{
			OrderID:          order.OrderID,
			OrderNumber:      order.OrderNumber,
			EventTitle:       order.EventTitle,
			EventBookingDate: order.EventBookingDate,
			TotalAmount:      order.TotalAmount,
		}
		if s.QR != nil {
			encoded, err := s.QR.GenerateConfirmationQRBase64(qr.ConfirmationPayload{
				OrderID:          order.OrderID,
				OrderNumber:      order.OrderNumber,
				UserID:           order.UserID,
				EventID:          order.EventID,
				EventBookingDate: order.EventBookingDate,
			})
			if err != nil {
				s.logger.Error("FULFILLMENT", fmt.Sprintf("QR generation failed for order %s: %v", order.OrderID, err))
			} else {
				summary.ConfirmationQR = encoded
			}
		}
		summaries = append(summaries, summary)
		titles = append(titles, order.EventTitle)
		total += order.TotalAmount
	}

	return models.BookingConfirmedEvent{
		CheckoutBatchID: result.BatchID,
		UserID:          userID,
		BookingDetails:  summaries,
		BookingSummary:  fmt.Sprintf("%d booking(s): %s", len(summaries), strings.Join(titles, ", ")),
		TotalAmount:     total,
		ConfirmedAt:     time.Now().UTC(),
	}
}
