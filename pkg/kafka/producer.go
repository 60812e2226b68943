package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/esgpulse/esg-analytics/pkg/config"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// MaxMessageBytes bounds one encoded event. It is above the API's 2 MiB JSON
// body limit; topics carrying reports need max.message.bytes raised to match.
const MaxMessageBytes = 4 << 20

// Event is one JSON-encoded message. Key selects the partition.
type Event struct {
	Key   string
	Value any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON events to one topic.
type Producer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchBytes:             MaxMessageBytes,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Topic returns the destination topic.
func (p *Producer) Topic() string { return p.topic }

// Publish writes one event synchronously.
func (p *Producer) Publish(ctx context.Context, key string, value any) error {
	return p.PublishBatch(ctx, []Event{{Key: key, Value: value}})
}

// PublishBatch writes events in a single call. Nothing is written if any
// value fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, len(events))
	size := 0
	for i, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return fmt.Errorf("encoding event %q: %w", event.Key, err)
		}
		if len(value) > MaxMessageBytes {
			return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge,
				"event %q is %d bytes, limit is %d", event.Key, len(value), MaxMessageBytes)
		}
		messages[i] = kafka.Message{Key: []byte(event.Key), Value: value}
		size += len(value)
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("publish failed", "count", len(messages), "error", err)
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}
	p.logger.Debug("published", "count", len(messages), "bytes", size)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
