package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const publishTimeout = 10 * time.Second

// PurchaseCompletedEvent is the payload published after a successful purchase
type PurchaseCompletedEvent struct {
	EventID     string    `json:"event_id"`
	PurchaseID  string    `json:"purchase_id"`
	SweetID     string    `json:"sweet_id"`
	UserID      string    `json:"user_id"`
	Quantity    int       `json:"quantity"`
	TotalPrice  float64   `json:"total_price"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// Producer publishes purchase events to Kafka
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewProducer creates a Kafka producer for purchase events
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		logger: logger,
	}
}

// PublishPurchaseCompleted publishes a purchase event keyed by purchase ID
func (p *Producer) PublishPurchaseCompleted(event PurchaseCompletedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal purchase event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.PurchaseID),
		Value: value,
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish purchase event: %w", err)
	}

	p.logger.Debug("Purchase event published",
		zap.String("event_id", event.EventID),
		zap.String("purchase_id", event.PurchaseID),
	)

	return nil
}

// Close flushes and closes the underlying writer
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
