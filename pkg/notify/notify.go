// Package notify carries "you have a new message" events from the gateway to
// the external notification service. The gateway publishes events to Kafka;
// the notifier app consumes them and calls the service over HTTP.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/chat-delivery/pkg/model"
)

type EventType string

const (
	EventNewMessage EventType = "NEW_MESSAGE"
	EventGameInvite EventType = "GAME_INVITE"
)

type Event struct {
	RecipientID  string    `json:"recipientId"`
	SenderID     string    `json:"senderId"`
	Type         EventType `json:"type"`
	InvitationID string    `json:"invitationId,omitempty"`
	At           time.Time `json:"at"`
}

// EventFor builds the notification for a stored message.
func EventFor(m *model.Message) Event {
	e := Event{RecipientID: m.To, SenderID: m.From, Type: EventNewMessage, At: m.SentAt}
	if m.Kind() == model.KindInvite {
		e.Type = EventGameInvite
		if id, ok := m.Payload()["invitationId"].(string); ok {
			e.InvitationID = id
		}
	}
	return e
}

// Notifier is fire-and-forget from the caller's point of view; errors are
// returned only so they can be logged.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

// Notify publishes e keyed by recipient, so one user's events stay ordered.
func (k *Kafka) Notify(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.RecipientID),
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("publish notification for %s: %w", e.RecipientID, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Log only records events. Used when no broker is configured.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(_ context.Context, e Event) error {
	l.logger.Debug().
		Str("recipient", e.RecipientID).
		Str("sender", e.SenderID).
		Str("type", string(e.Type)).
		Msg("notification")
	return nil
}
