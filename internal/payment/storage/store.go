package storage

import (
	"context"

	"ms-booking/internal/models"
)

type Store interface {
	// Payment operations
	SavePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.Payment, error)
	GetPaymentByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	// MarkWebhookProcessed flips the processed flag only if it is still
	// unset; returns false when another delivery got there first.
	MarkWebhookProcessed(ctx context.Context, paymentID string) (bool, error)
	ListPayments(ctx context.Context, userID string, limit, offset int) ([]*models.Payment, error)

	// Health and maintenance
	Close() error
	HealthCheck() error
}
