package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-booking/internal/apperr"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

// FulfillmentHandler turns a payment success event into orders. Returning
// apperr.ErrIdempotentNoop counts as handled.
type FulfillmentHandler func(ctx context.Context, event models.PaymentSucceededEvent) error

// Consumer reads payment.success and drives fulfillment. Offsets are
// committed only after the handler succeeds (or reports an idempotent noop),
// so a crash mid-fulfillment redelivers rather than drops.
type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handler FulfillmentHandler) {
	c.logger.Info("KAFKA", "Fulfillment consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.logger.Info("KAFKA", "Fulfillment consumer stopping")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error fetching message: %v", err))
			continue
		}

		var event models.PaymentSucceededEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// Poison message: commit so it does not wedge the partition.
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to unmarshal payment event: %v", err))
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit poison message: %v", err))
			}
			continue
		}

		c.logger.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("payment=%s intent=%s", event.PaymentID, event.CheckoutIntentID))

		err = handler(ctx, event)
		if err != nil && !errors.Is(err, apperr.ErrIdempotentNoop) {
			// Leave the offset uncommitted; the group will redeliver.
			c.logger.Error("KAFKA", fmt.Sprintf("Fulfillment failed for payment %s: %v", event.PaymentID, err))
			continue
		}
		if errors.Is(err, apperr.ErrIdempotentNoop) {
			c.logger.Info("KAFKA", fmt.Sprintf("Duplicate payment event %s, already fulfilled", event.PaymentID))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit offset: %v", err))
		}
	}
}

// Close gracefully shuts down the Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
