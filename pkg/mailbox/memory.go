package mailbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mahaj/chat-delivery/pkg/model"
)

// Memory is an in-process Mailbox. It backs tests and MAILBOX_BACKEND=memory.
type Memory struct {
	mu       sync.RWMutex
	now      func() time.Time
	messages []*model.Message // insertion order
}

type MemoryOption func(*Memory)

// WithClock overrides the clock used for delivery stamps and the
// undelivered window.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (s *Memory) Add(_ context.Context, m *model.Message) (string, error) {
	stored := *m
	stored.ID = uuid.NewString()
	stored.DeliveredAt = nil

	s.mu.Lock()
	s.messages = append(s.messages, &stored)
	s.mu.Unlock()

	m.ID = stored.ID
	m.DeliveredAt = nil
	return stored.ID, nil
}

func (s *Memory) GetConversation(_ context.Context, a, b string, limit int) ([]*model.Message, error) {
	s.mu.RLock()
	var out []*model.Message
	for _, m := range s.messages {
		if m.Between(a, b) {
			out = append(out, clone(m))
		}
	}
	s.mu.RUnlock()

	sortBySentAt(out)
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) GetConversations(_ context.Context, userID string) ([]model.ConversationSummary, error) {
	latest := make(map[string]*model.Message)

	s.mu.RLock()
	for _, m := range s.messages {
		if m.From != userID && m.To != userID {
			continue
		}
		partner := m.PartnerOf(userID)
		if cur, ok := latest[partner]; !ok || !m.SentAt.Before(cur.SentAt) {
			latest[partner] = m
		}
	}
	summaries := make([]model.ConversationSummary, 0, len(latest))
	for _, m := range latest {
		summaries = append(summaries, model.SummaryOf(userID, m))
	}
	s.mu.RUnlock()

	model.SortSummaries(summaries)
	return summaries, nil
}

func (s *Memory) GetConversationPartners(ctx context.Context, userID string) ([]string, error) {
	summaries, err := s.GetConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	return partnersOf(summaries), nil
}

func (s *Memory) GetUndeliveredMessages(_ context.Context, userID string, since time.Duration, limit int) ([]*model.Message, error) {
	cutoff := s.now().Add(-since)

	s.mu.RLock()
	var out []*model.Message
	for _, m := range s.messages {
		if m.To == userID && m.DeliveredAt == nil && !m.SentAt.Before(cutoff) {
			out = append(out, clone(m))
		}
	}
	s.mu.RUnlock()

	sortBySentAt(out)
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) MarkDelivered(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if _, ok := want[m.ID]; ok && m.DeliveredAt == nil {
			at := now
			m.DeliveredAt = &at
		}
	}
	return nil
}

func (s *Memory) DeleteConversation(_ context.Context, a, b string) (int, error) {
	return s.deleteWhere(func(m *model.Message) bool {
		return m.Between(a, b)
	}), nil
}

func (s *Memory) DeleteAllForUser(_ context.Context, userID string) error {
	s.deleteWhere(func(m *model.Message) bool {
		return m.From == userID || m.To == userID
	})
	return nil
}

func (s *Memory) deleteWhere(match func(*model.Message) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.messages[:0]
	removed := 0
	for _, m := range s.messages {
		if match(m) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(s.messages); i++ {
		s.messages[i] = nil
	}
	s.messages = kept
	return removed
}

func clone(m *model.Message) *model.Message {
	c := *m
	if m.DeliveredAt != nil {
		at := *m.DeliveredAt
		c.DeliveredAt = &at
	}
	return &c
}

func sortBySentAt(msgs []*model.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})
}
