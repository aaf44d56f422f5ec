package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chat-delivery/pkg/metrics"
	"github.com/mahaj/chat-delivery/pkg/notify"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, e notify.Event) error
}

// Consumer relays notification events from Kafka to the notification
// service. Delivery is best effort: an event whose dispatch fails is logged
// and committed so one bad event never stalls the partition.
type Consumer struct {
	reader     MessageReader
	dispatcher Dispatcher
	logger     zerolog.Logger
	retryDelay time.Duration
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})
}

func NewConsumer(reader MessageReader, dispatcher Dispatcher, logger zerolog.Logger) *Consumer {
	return &Consumer{reader: reader, dispatcher: dispatcher, logger: logger, retryDelay: time.Second}
}

// Consume runs until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Warn().Err(err).Dur("retry_in", c.retryDelay).Msg("failed to fetch event")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		c.handle(ctx, m)

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Int64("offset", m.Offset).Msg("failed to commit event")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	var e notify.Event
	if err := json.Unmarshal(m.Value, &e); err != nil {
		c.logger.Warn().Err(err).Int64("offset", m.Offset).Msg("skipping malformed event")
		return
	}

	if err := c.dispatcher.Dispatch(ctx, e); err != nil {
		metrics.NotificationFailures.Inc()
		c.logger.Error().Err(err).
			Str("recipient_id", e.RecipientID).
			Str("sender_id", e.SenderID).
			Str("type", string(e.Type)).
			Msg("failed to dispatch notification")
		return
	}
	c.logger.Debug().
		Str("recipient_id", e.RecipientID).
		Str("type", string(e.Type)).
		Msg("notification dispatched")
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
