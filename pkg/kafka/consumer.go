// Package kafka wraps segmentio/kafka-go with JSON producers and a consume
// loop that hands each message to a MessageHandler. The searcher uses it for
// search analytics events and for LSA artifact reload notices.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is called once per fetched message. A nil return commits
// the offset; an error leaves it uncommitted.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads one topic and dispatches to a MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
}

// ConsumerOption customises the reader.
type ConsumerOption func(*kafka.ReaderConfig)

// WithGroupID overrides the consumer group from config. Reload notices use a
// per-instance group so that every replica sees every message.
func WithGroupID(group string) ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.GroupID = group }
}

// WithFirstOffset starts a new group at the beginning of the topic.
func WithFirstOffset() ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.StartOffset = kafka.FirstOffset }
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	}
	for _, opt := range opts {
		opt(&rc)
	}
	return &Consumer{
		reader:  kafka.NewReader(rc),
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", rc.GroupID),
		handler: handler,
	}
}

// Start runs the fetch/handle/commit loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
