package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-ordering/internal/events"
	"ms-ordering/internal/logger"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group.
// Each instance should use its own group so every instance sees every event.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Start consumes events until ctx is cancelled, passing each decoded event to handler.
func (c *Consumer) Start(ctx context.Context, handler func(ctx context.Context, e events.Event) error) {
	c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "Kafka consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "Kafka consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		e, err := Decode(msg.Value)
		if err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal message at offset %d: %v", msg.Offset, err))
			continue
		}

		if err := handler(ctx, e); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Handler failed for %s event: %v", e.Type, err))
		}
	}
}

// Decode parses a message value written by Producer.
func Decode(value []byte) (events.Event, error) {
	var e events.Event
	if err := json.Unmarshal(value, &e); err != nil {
		return events.Event{}, err
	}
	if e.Type == "" {
		return events.Event{}, errors.New("event type is missing")
	}
	return e, nil
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
