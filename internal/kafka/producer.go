package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer publishes booking events. One writer per topic, created lazily.
type Producer struct {
	brokers []string
	logger  *logger.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	return &Producer{
		brokers: brokers,
		logger:  log,
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *Producer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers: p.brokers,
		Topic:   topic,
	})
	p.writers[topic] = w
	return w
}

// Publish writes one keyed JSON message to a topic.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", topic, err)
	}

	err = p.writer(topic).WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.logger.Error("KAFKA", fmt.Sprintf("Failed to publish to %s: %v", topic, err))
		return err
	}

	p.logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s", key))
	return nil
}

// PublishPaymentSucceeded streams the success event that triggers
// fulfillment.
func (p *Producer) PublishPaymentSucceeded(ctx context.Context, topic string, event models.PaymentSucceededEvent) error {
	return p.Publish(ctx, topic, event.PaymentID, event)
}

func (p *Producer) PublishPaymentFailed(ctx context.Context, topic string, event models.PaymentFailedEvent) error {
	return p.Publish(ctx, topic, event.PaymentID, event)
}

// PublishOrderCreated streams one freshly created order.
func (p *Producer) PublishOrderCreated(ctx context.Context, topic string, order models.Order) error {
	return p.Publish(ctx, topic, order.OrderID, order)
}

// PublishBookingConfirmed streams the post-fulfillment notification event.
func (p *Producer) PublishBookingConfirmed(ctx context.Context, topic string, event models.BookingConfirmedEvent) error {
	return p.Publish(ctx, topic, event.CheckoutBatchID, event)
}

func (p *Producer) PublishAlert(ctx context.Context, topic string, event models.AlertEvent) error {
	return p.Publish(ctx, topic, event.ReferenceID, event)
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close writer for %s: %w", topic, err)
		}
	}
	return firstErr
}
