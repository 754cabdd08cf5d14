package audit

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"
)

// KafkaConfig locates the audit topic.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// KafkaSink publishes audit records to a Kafka topic, keyed by strategy so
// per-strategy ordering survives partitioning.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink over the configured topic.
func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	return &KafkaSink{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
		}),
	}
}

// Append publishes one record.
func (s *KafkaSink) Append(ctx context.Context, record Record) error {
	value, err := sonic.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encode audit record")
	}
	msg := kafka.Message{
		Key:   []byte(record.StrategyID),
		Value: value,
	}
	return errors.Wrap(s.writer.WriteMessages(ctx, msg), "publish audit record")
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
