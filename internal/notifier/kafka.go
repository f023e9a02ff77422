package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes migration events keyed by context id, so events of one
// context stay ordered within partition.
type Kafka struct {
	writer MessageWriter
	now    func() time.Time
}

func NewKafkaWriter(brokers []string, topic string, maxAttempts int) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  maxAttempts,
		RequiredAcks: kafka.RequireOne,
	}
}

func NewKafka(writer MessageWriter) *Kafka {
	return &Kafka{
		writer: writer,
		now:    time.Now,
	}
}

func (k *Kafka) NotifyMigration(
	ctx context.Context,
	callbackReference string,
	contextID models.ContextID,
	newReferenceURI string,
) error {
	value, err := json.Marshal(migrationDto{
		ContextID:         contextID,
		CallbackReference: callbackReference,
		ReferenceURI:      newReferenceURI,
		Timestamp:         k.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode migration event: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(contextID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish migration of %s: %w", contextID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
