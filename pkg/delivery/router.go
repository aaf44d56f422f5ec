// Package delivery turns inbound websocket frames into durable messages and
// pushes them to live recipients. Every accepted message is written to the
// mailbox before any live push, so a crash between the two is recovered by
// replay on the recipient's next connect.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/mahaj/chat-delivery/pkg/mailbox"
	"github.com/mahaj/chat-delivery/pkg/metrics"
	"github.com/mahaj/chat-delivery/pkg/model"
	"github.com/mahaj/chat-delivery/pkg/notify"
	"github.com/mahaj/chat-delivery/pkg/registry"
)

// BlockChecker decides whether sender may contact recipient.
type BlockChecker interface {
	IsBlocked(ctx context.Context, senderID, recipientID string) (bool, error)
}

type Router struct {
	mailbox  mailbox.Mailbox
	registry *registry.Registry
	blocks   BlockChecker
	notifier notify.Notifier
	logger   zerolog.Logger
	validate *validator.Validate

	now           func() time.Time
	notifyTimeout time.Duration
	notifications sync.WaitGroup
}

type Option func(*Router)

// WithClock sets the clock used to stamp SentAt.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(r *Router) { r.notifyTimeout = d }
}

func NewRouter(mb mailbox.Mailbox, reg *registry.Registry, blocks BlockChecker, notifier notify.Notifier, logger zerolog.Logger, opts ...Option) *Router {
	r := &Router{
		mailbox:       mb,
		registry:      reg,
		blocks:        blocks,
		notifier:      notifier,
		logger:        logger,
		validate:      validator.New(),
		now:           time.Now,
		notifyTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one inbound frame from senderID's connection. Rejections
// are answered on reply with a single ERROR frame; the connection stays
// open. It returns the stored message, or the code the frame was rejected with.
func (r *Router) Handle(ctx context.Context, senderID string, reply registry.Channel, raw []byte) (*model.Message, model.ErrorCode) {
	msg, code := r.route(ctx, senderID, raw)
	if code != "" {
		r.reject(reply, senderID, code)
		return nil, code
	}
	metrics.FramesTotal.WithLabelValues("accepted").Inc()
	return msg, ""
}

func (r *Router) route(ctx context.Context, senderID string, raw []byte) (*model.Message, model.ErrorCode) {
	msg, code := r.parse(raw)
	if code != "" {
		return nil, code
	}
	if senderID == "" {
		return nil, model.CodeUnauthenticated
	}
	msg.From = senderID

	blocked, err := r.blocks.IsBlocked(ctx, senderID, msg.To)
	if err != nil {
		r.logger.Error().Err(err).
			Str("sender", senderID).
			Str("recipient", msg.To).
			Str("type", string(msg.Kind())).
			Msg("block check failed")
		return nil, model.CodeInternalError
	}
	if blocked {
		return nil, model.CodeUserBlocked
	}

	if err := r.dispatch(ctx, msg); err != nil {
		return nil, model.CodeInternalError
	}
	return msg, ""
}

// parse decodes and validates a frame. Malformed JSON and well-formed JSON
// of the wrong shape are reported with different codes.
func (r *Router) parse(raw []byte) (*model.Message, model.ErrorCode) {
	if !json.Valid(raw) {
		return nil, model.CodeInvalidJSON
	}

	var f model.InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, model.CodeInvalidPayload
	}
	if err := r.validate.Struct(f); err != nil {
		return nil, model.CodeInvalidPayload
	}

	msg := &model.Message{To: f.To}
	switch f.Type {
	case model.KindText:
		msg.Content = model.Text{Body: f.Content}
	case model.KindInvite:
		var payload map[string]any
		if err := json.Unmarshal(f.Payload, &payload); err != nil || payload == nil {
			return nil, model.CodeInvalidPayload
		}
		msg.Content = model.Invite{Payload: payload}
	}
	return msg, ""
}

// DeliverInvite stores and delivers an invite raised by another service
// rather than by a client frame.
func (r *Router) DeliverInvite(ctx context.Context, fromID, toID string, payload map[string]any) (*model.Message, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	msg := &model.Message{From: fromID, To: toID, Content: model.Invite{Payload: payload}}
	if err := r.dispatch(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// dispatch persists msg, then pushes it live and fires the notification.
func (r *Router) dispatch(ctx context.Context, msg *model.Message) error {
	msg.SentAt = r.now().UTC()

	if _, err := r.mailbox.Add(ctx, msg); err != nil {
		r.logger.Error().Err(err).
			Str("sender", msg.From).
			Str("recipient", msg.To).
			Str("type", string(msg.Kind())).
			Msg("persist message failed")
		return fmt.Errorf("persist message: %w", err)
	}

	if r.registry.Send(msg.To, model.OutboundFrame(msg)) {
		metrics.LiveDeliveries.WithLabelValues("delivered").Inc()
		// The message is durable either way; a failed mark only means
		// replay may push it again.
		if err := r.mailbox.MarkDelivered(ctx, []string{msg.ID}); err != nil {
			r.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("mark delivered failed")
		} else {
			at := r.now().UTC()
			msg.DeliveredAt = &at
		}
	} else {
		metrics.LiveDeliveries.WithLabelValues("queued").Inc()
	}

	r.notify(notify.EventFor(msg))
	return nil
}

// notify runs detached from the frame's context: a closing connection must
// not cancel it and its failure never reaches the sender.
func (r *Router) notify(e notify.Event) {
	r.notifications.Add(1)
	go func() {
		defer r.notifications.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error().Interface("panic", p).Str("recipient", e.RecipientID).Msg("notifier panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.notifyTimeout)
		defer cancel()
		if err := r.notifier.Notify(ctx, e); err != nil {
			metrics.NotificationFailures.Inc()
			r.logger.Warn().Err(err).
				Str("recipient", e.RecipientID).
				Str("sender", e.SenderID).
				Str("type", string(e.Type)).
				Msg("notification failed")
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (r *Router) Wait() {
	r.notifications.Wait()
}

func (r *Router) reject(reply registry.Channel, senderID string, code model.ErrorCode) {
	metrics.FramesTotal.WithLabelValues(string(code)).Inc()
	r.logger.Debug().Str("sender", senderID).Str("code", string(code)).Msg("frame rejected")

	frame, err := json.Marshal(model.NewErrorFrame(code))
	if err != nil {
		return
	}
	if reply != nil && !reply.TrySend(frame) {
		r.logger.Debug().Str("sender", senderID).Msg("error frame dropped")
	}
}
