// Package ingest turns domain events from Kafka into hub broadcasts.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"notifier/internal/config"
	"notifier/internal/logging"
	"notifier/pkg/types"
)

// Publisher is the hub as seen by the consumer
type Publisher interface {
	Publish(ctx context.Context, b *types.Broadcast) error
}

// MessageReader is the subset of *kafka.Reader the consumer needs
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads domain events and publishes the resulting broadcasts
type Consumer struct {
	reader    MessageReader
	publisher Publisher
	logger    *logging.Logger
}

// NewConsumer creates a consumer-group reader for the configured topic
func NewConsumer(cfg config.KafkaConfig, publisher Publisher, logger *logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxWait:  500 * time.Millisecond,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, publisher, logger), nil
}

func newConsumer(reader MessageReader, publisher Publisher, logger *logging.Logger) *Consumer {
	return &Consumer{
		reader:    reader,
		publisher: publisher,
		logger:    logging.OrNop(logger).Named("ingest"),
	}
}

// Run consumes until ctx is cancelled or the reader fails
// FUNCTIONAL DISCOVERY: Offsets are committed once every broadcast of an event is published;
// events that can never be published are committed and skipped
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("kafka fetch failed", logging.Fields{"error": err})
			return err
		}

		if !c.handle(ctx, msg) {
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("kafka commit failed", logging.Fields{"offset": msg.Offset, "error": err})
		}
	}
}

// Close releases the reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// handle reports whether the message is done with and may be committed
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	evt, err := DecodeEvent(msg.Value)
	if err != nil {
		c.logger.Warn("skipping domain event", logging.Fields{"offset": msg.Offset, "error": err})
		return true
	}
	broadcasts, err := evt.Broadcasts()
	if err != nil {
		c.logger.Warn("skipping domain event", logging.Fields{"offset": msg.Offset, "error": err})
		return true
	}

	for _, b := range broadcasts {
		if err := c.publisher.Publish(ctx, b); err != nil {
			if permanent(err) {
				c.logger.Warn("dropping broadcast", logging.Fields{"type": evt.Type, "group": b.Group, "error": err})
				continue
			}
			c.logger.Error("failed to publish domain event", logging.Fields{"type": evt.Type, "group": b.Group, "error": err})
			return false
		}
	}
	c.logger.Debug("domain event published", logging.Fields{"type": evt.Type, "broadcasts": len(broadcasts)})
	return true
}

func permanent(err error) bool {
	return errors.Is(err, types.ErrInvalidGroupName) ||
		errors.Is(err, types.ErrInvalidChannel) ||
		errors.Is(err, types.ErrInvalidPayload) ||
		errors.Is(err, types.ErrPayloadTooLarge)
}
