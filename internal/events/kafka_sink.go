package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the part of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors lifecycle events onto a Kafka topic for downstream
// consumers (analytics, audit).
type KafkaSink struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaSink builds a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{writer: writer, logger: logger}
}

// Register subscribes the sink to every event type.
func (s *KafkaSink) Register(dispatcher Dispatcher) {
	for _, eventType := range AllTypes() {
		dispatcher.Subscribe(eventType, s.Handle)
	}
}

// Handle writes one event. Messages are keyed by ticket id so a ticket's
// events stay ordered within a partition.
func (s *KafkaSink) Handle(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.TicketID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "user_id", Value: []byte(strconv.FormatInt(event.UserID, 10))},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
		Time: event.Timestamp,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("failed to publish event to kafka",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
		return err
	}
	return nil
}

// Close flushes pending writes.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
