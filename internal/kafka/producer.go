package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"ms-ordering/internal/events"
	"ms-ordering/internal/logger"
)

// Producer is an events.Sink that writes every event to one topic, keyed by branch
// so a branch's events stay ordered within a partition.
type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{Writer: writer, Logger: log}
}

// Publish streams the event to Kafka.
func (p *Producer) Publish(ctx context.Context, e events.Event) error {
	msgBytes, err := json.Marshal(e)
	if err != nil {
		return err
	}

	p.Logger.LogKafka("PUBLISH", p.Writer.Topic, fmt.Sprintf("%s for branch %s", e.Type, e.BranchID))

	return p.Writer.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(e.BranchID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// TopicRouter sends session events to one sink and everything else to another.
type TopicRouter struct {
	Orders   events.Sink
	Sessions events.Sink
}

func (r TopicRouter) Publish(ctx context.Context, e events.Event) error {
	if strings.HasPrefix(string(e.Type), "session:") {
		return r.Sessions.Publish(ctx, e)
	}
	return r.Orders.Publish(ctx, e)
}
