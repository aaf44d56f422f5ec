// Package mailbox is the durable store of direct messages: it records every
// accepted message, answers history queries and tracks which messages have
// reached a live connection.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mahaj/chat-delivery/pkg/model"
)

// DefaultLimit caps conversation and replay queries when no limit is given.
const DefaultLimit = 100

// ErrPersistence wraps every storage failure. Callers must not treat a
// message as sent when Add returns it.
var ErrPersistence = errors.New("mailbox: persistence failure")

// Mailbox is the durable message store contract. Implementations must be
// safe for concurrent use; conflicting writes are serialized by the
// underlying store.
type Mailbox interface {
	// Add persists m with no delivery time and returns the store-assigned id.
	// m.ID is set on success.
	Add(ctx context.Context, m *model.Message) (string, error)

	// GetConversation returns messages between a and b in both directions,
	// ascending by SentAt. When more than limit exist the oldest are kept.
	GetConversation(ctx context.Context, a, b string, limit int) ([]*model.Message, error)

	// GetConversations returns one summary per partner of userID, most recent first.
	GetConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)

	// GetConversationPartners returns the partner ids of userID, most recent first.
	GetConversationPartners(ctx context.Context, userID string) ([]string, error)

	// GetUndeliveredMessages returns messages addressed to userID that were
	// never delivered and were sent within the last since, ascending by SentAt.
	GetUndeliveredMessages(ctx context.Context, userID string, since time.Duration, limit int) ([]*model.Message, error)

	// MarkDelivered stamps the given messages as delivered now. Messages
	// already delivered keep their original time.
	MarkDelivered(ctx context.Context, ids []string) error

	// DeleteConversation removes every message between a and b and returns
	// how many were removed.
	DeleteConversation(ctx context.Context, a, b string) (int, error)

	// DeleteAllForUser removes every message sent or received by userID.
	DeleteAllForUser(ctx context.Context, userID string) error
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// partnersOf projects summaries to partner ids, keeping their order.
func partnersOf(summaries []model.ConversationSummary) []string {
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.PartnerID)
	}
	return ids
}
