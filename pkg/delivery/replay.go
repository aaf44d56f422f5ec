package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/mahaj/chat-delivery/pkg/mailbox"
	"github.com/mahaj/chat-delivery/pkg/metrics"
	"github.com/mahaj/chat-delivery/pkg/model"
	"github.com/mahaj/chat-delivery/pkg/registry"
)

// Replayer drains a user's undelivered messages into a freshly opened
// connection.
//
// The connection is registered before replay runs, so a message pushed live
// while replay is fetching can arrive twice. Clients de-duplicate.
type Replayer struct {
	mailbox mailbox.Mailbox
	window  time.Duration
	limit   int
	logger  zerolog.Logger
}

func NewReplayer(mb mailbox.Mailbox, window time.Duration, limit int, logger zerolog.Logger) *Replayer {
	return &Replayer{mailbox: mb, window: window, limit: limit, logger: logger}
}

// Replay pushes undelivered messages for userID to ch in send order and
// marks the ones written as delivered in one call. Anything not written
// stays undelivered for the next connect.
func (p *Replayer) Replay(ctx context.Context, userID string, ch registry.Channel) (int, error) {
	msgs, err := p.mailbox.GetUndeliveredMessages(ctx, userID, p.window, p.limit)
	if err != nil {
		p.logger.Error().Err(err).Str("user", userID).Msg("fetch undelivered messages failed")
		return 0, err
	}

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		frame, err := json.Marshal(model.OutboundFrame(m))
		if err != nil {
			p.logger.Error().Err(err).Str("message_id", m.ID).Msg("encode replayed message failed")
			continue
		}
		// Stop at the first refusal so the client never sees a gap.
		if !ch.TrySend(frame) {
			break
		}
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := p.mailbox.MarkDelivered(ctx, ids); err != nil {
		p.logger.Error().Err(err).Str("user", userID).Int("count", len(ids)).Msg("mark replayed messages failed")
		return len(ids), err
	}
	metrics.ReplayedMessages.Add(float64(len(ids)))
	return len(ids), nil
}
