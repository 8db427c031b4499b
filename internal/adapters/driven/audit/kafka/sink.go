// Package kafka publishes ingestion audit events to a Kafka topic.
// Events are JSON encoded and keyed by document id so every event for
// a document lands on the same partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/logger"
)

// Ensure Sink implements the interface.
var _ driven.AuditSink = (*Sink)(nil)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "legalvault.audit"

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures the producer.
type Config struct {
	Brokers []string
	Topic   string
}

// Sink writes audit events to Kafka synchronously.
type Sink struct {
	writer messageWriter
	topic  string
	log    *slog.Logger
}

// New creates a Sink for the given brokers.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka audit sink needs at least one broker", domain.ErrInvalidInput)
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newSink(w, cfg.Topic), nil
}

func newSink(w messageWriter, topic string) *Sink {
	return &Sink{
		writer: w,
		topic:  topic,
		log:    logger.WithComponent("audit-kafka").With("topic", topic),
	}
}

// Record publishes one event.
func (s *Sink) Record(ctx context.Context, event domain.AuditEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	key := event.DocumentID
	if key == "" {
		key = event.Source
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "outcome", Value: []byte(event.Outcome)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.log.Error("failed to publish audit event", "key", key, "error", err)
		return fmt.Errorf("publishing audit event: %w", err)
	}
	s.log.Debug("audit event published", "key", key, "action", event.Action)
	return nil
}

// Close flushes pending writes and closes the writer.
func (s *Sink) Close() error {
	if err := s.writer.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
