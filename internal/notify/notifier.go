package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"doubtdesk/internal/config"
	"doubtdesk/internal/models"
)

// Notifier is the best-effort notification sink. Delivery is a side channel:
// failures are logged by callers and never gate resolution.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// KafkaNotifier publishes notifications to a Kafka topic, keyed by recipient
// so each recipient's notifications stay ordered.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a KafkaNotifier for the configured topic.
func NewKafkaNotifier(cfg *config.KafkaConfig) *KafkaNotifier {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	})
	return &KafkaNotifier{writer: writer}
}

// Notify serializes the notification and publishes it.
func (n *KafkaNotifier) Notify(ctx context.Context, notification *models.Notification) error {
	if notification.SentAt.IsZero() {
		notification.SentAt = time.Now()
	}

	jsonData, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(notification.RecipientID),
		Value: jsonData,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// Close shuts down the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
