package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "registry.events",
		BatchTimeout: 100 * time.Millisecond,
	}
}

// KafkaPublisher ships outbox records to Kafka. The tenant id is the message
// key, so one tenant's events land on one partition and keep their order.
// The record id travels in the headers as the consumer-side dedup key.
type KafkaPublisher struct {
	writer *kafka.Writer
	config KafkaConfig
}

func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: writer, config: cfg}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec.Envelope())
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "Event-Type", Value: []byte(rec.EventType)},
		{Key: "Event-ID", Value: []byte(rec.ID.String())},
	}
	for k, v := range rec.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(rec.TenantID),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("publish to Kafka: %w", err)
	}

	log.Info().
		Str("topic", p.config.Topic).
		Str("event_id", rec.ID.String()).
		Str("tenant_id", rec.TenantID).
		Msg("published to Kafka")

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
