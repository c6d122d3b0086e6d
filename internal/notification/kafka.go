package notification

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"tibcore/internal/model"
)

// KafkaSink publishes alert events to a Kafka topic, keyed by instrument so
// per-instrument ordering survives partitioning.
type KafkaSink struct {
	writer *kafka.Writer
}

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewKafkaSink creates a Kafka sink.
func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	return &KafkaSink{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
		}),
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Dispatch(ctx context.Context, ev model.AlertEvent) error {
	msg := kafka.Message{
		Key:   []byte(ev.Instrument),
		Value: ev.JSON(),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish alert: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaSink) Close() error { return k.writer.Close() }
