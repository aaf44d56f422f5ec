package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/chat-delivery/pkg/db"
	"github.com/mahaj/chat-delivery/pkg/model"
	"github.com/mahaj/chat-delivery/pkg/snowflake"
)

// deleteChunk bounds the size of the unlogged batches used for cleanup.
const deleteChunk = 100

// Scylla is the production Mailbox. Message ids are snowflake ids stamped
// with SentAt, so clustering order within a conversation is send order and
// a time window maps onto an id range.
type Scylla struct {
	session *db.Session
	node    *snowflake.Node
	now     func() time.Time
}

func NewScylla(session *db.Session, node *snowflake.Node) *Scylla {
	return &Scylla{session: session, node: node, now: time.Now}
}

func (s *Scylla) Add(ctx context.Context, m *model.Message) (string, error) {
	content, payload, err := encodeContent(m)
	if err != nil {
		return "", persistErr("add", err)
	}

	id := s.node.GenerateAt(m.SentAt)
	key := model.ConversationKey(m.From, m.To)
	// Summaries are written at the message's own timestamp so a late write
	// of an older message never replaces a newer summary.
	ts := m.SentAt.UnixMicro()

	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO messages (conversation_key, id, from_user, to_user, kind, content, payload, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key, int64(id), m.From, m.To, string(m.Kind()), content, payload, m.SentAt)
	b.Query(`INSERT INTO messages_by_id (id, conversation_key, to_user) VALUES (?, ?, ?)`,
		int64(id), key, m.To)
	b.Query(`INSERT INTO undelivered_messages (to_user, id, conversation_key) VALUES (?, ?, ?)`,
		m.To, int64(id), key)
	for _, pair := range [][2]string{{m.From, m.To}, {m.To, m.From}} {
		b.Query(`INSERT INTO user_conversations (user_id, other_user_id, last_message, last_message_type, last_message_from, last_updated)
			VALUES (?, ?, ?, ?, ?, ?) USING TIMESTAMP ?`,
			pair[0], pair[1], m.Body(), string(m.Kind()), m.From, m.SentAt, ts)
	}

	if err := s.session.ExecuteBatch(b); err != nil {
		return "", persistErr("add", err)
	}

	m.ID = id.String()
	m.DeliveredAt = nil
	return m.ID, nil
}

const selectMessage = `SELECT id, from_user, to_user, kind, content, payload, sent_at, delivered_at FROM messages`

func (s *Scylla) GetConversation(ctx context.Context, a, b string, limit int) ([]*model.Message, error) {
	iter := s.session.Query(selectMessage+` WHERE conversation_key = ? LIMIT ?`,
		model.ConversationKey(a, b), normalizeLimit(limit)).WithContext(ctx).Iter()

	var out []*model.Message
	for {
		m, ok, err := scanMessage(iter)
		if err != nil {
			iter.Close()
			return nil, persistErr("get conversation", err)
		}
		if !ok {
			break
		}
		out = append(out, m)
	}
	if err := iter.Close(); err != nil {
		return nil, persistErr("get conversation", err)
	}
	return out, nil
}

func (s *Scylla) GetConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	iter := s.session.Query(`SELECT other_user_id, last_message, last_message_type, last_message_from, last_updated
		FROM user_conversations WHERE user_id = ?`, userID).WithContext(ctx).Iter()

	var (
		summaries []model.ConversationSummary
		c         model.ConversationSummary
		kind      string
	)
	for iter.Scan(&c.PartnerID, &c.LastMessage, &kind, &c.LastMessageFrom, &c.LastMessageAt) {
		c.LastMessageType = model.Kind(kind)
		c.LastMessageAt = c.LastMessageAt.UTC()
		summaries = append(summaries, c)
	}
	if err := iter.Close(); err != nil {
		return nil, persistErr("get conversations", err)
	}

	model.SortSummaries(summaries)
	return summaries, nil
}

func (s *Scylla) GetConversationPartners(ctx context.Context, userID string) ([]string, error) {
	summaries, err := s.GetConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	return partnersOf(summaries), nil
}

// GetUndeliveredMessages pages through the inbox until limit live messages
// are found, since inbox rows can point at messages that are gone or
// already delivered.
func (s *Scylla) GetUndeliveredMessages(ctx context.Context, userID string, since time.Duration, limit int) ([]*model.Message, error) {
	limit = normalizeLimit(limit)
	after := int64(snowflake.Floor(s.now().Add(-since))) - 1

	out := make([]*model.Message, 0, limit)
	for len(out) < limit {
		refs, err := s.inboxPage(ctx, userID, after, limit)
		if err != nil {
			return nil, persistErr("get undelivered", err)
		}

		for _, r := range refs {
			after = r.id
			m, ok, err := s.messageAt(ctx, r.key, r.id)
			if err != nil {
				return nil, persistErr("get undelivered", err)
			}
			// The inbox row can outlive its message (deleted conversation) or
			// lag behind a concurrent MarkDelivered.
			if !ok || m.DeliveredAt != nil {
				continue
			}
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
		if len(refs) < limit {
			break
		}
	}
	return out, nil
}

type inboxRef struct {
	id  int64
	key string
}

func (s *Scylla) inboxPage(ctx context.Context, userID string, after int64, size int) ([]inboxRef, error) {
	iter := s.session.Query(`SELECT id, conversation_key FROM undelivered_messages WHERE to_user = ? AND id > ? LIMIT ?`,
		userID, after, size).WithContext(ctx).Iter()

	var (
		refs []inboxRef
		r    inboxRef
	)
	for iter.Scan(&r.id, &r.key) {
		refs = append(refs, r)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (s *Scylla) messageAt(ctx context.Context, key string, id int64) (*model.Message, bool, error) {
	iter := s.session.Query(selectMessage+` WHERE conversation_key = ? AND id = ?`, key, id).
		WithContext(ctx).Iter()
	m, ok, err := scanMessage(iter)
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return m, ok, err
}

func (s *Scylla) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := s.now().UTC()

	for _, raw := range ids {
		id, err := snowflake.Parse(raw)
		if err != nil {
			return persistErr("mark delivered", fmt.Errorf("bad id %q: %w", raw, err))
		}

		var key, to string
		err = s.session.Query(`SELECT conversation_key, to_user FROM messages_by_id WHERE id = ?`, int64(id)).
			WithContext(ctx).Scan(&key, &to)
		if err == gocql.ErrNotFound {
			continue
		}
		if err != nil {
			return persistErr("mark delivered", err)
		}

		var prev time.Time
		if _, err := s.session.Query(`UPDATE messages SET delivered_at = ? WHERE conversation_key = ? AND id = ? IF delivered_at = null`,
			now, key, int64(id)).WithContext(ctx).ScanCAS(&prev); err != nil {
			return persistErr("mark delivered", err)
		}
		if err := s.session.Query(`DELETE FROM undelivered_messages WHERE to_user = ? AND id = ?`, to, int64(id)).
			WithContext(ctx).Exec(); err != nil {
			return persistErr("mark delivered", err)
		}
	}
	return nil
}

func (s *Scylla) DeleteConversation(ctx context.Context, a, b string) (int, error) {
	key := model.ConversationKey(a, b)

	iter := s.session.Query(`SELECT id, to_user FROM messages WHERE conversation_key = ?`, key).
		WithContext(ctx).Iter()
	type row struct {
		id int64
		to string
	}
	var (
		rows []row
		r    row
	)
	for iter.Scan(&r.id, &r.to) {
		rows = append(rows, r)
	}
	if err := iter.Close(); err != nil {
		return 0, persistErr("delete conversation", err)
	}

	for start := 0; start < len(rows); start += deleteChunk {
		end := min(start+deleteChunk, len(rows))
		batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
		for _, r := range rows[start:end] {
			batch.Query(`DELETE FROM messages_by_id WHERE id = ?`, r.id)
			batch.Query(`DELETE FROM undelivered_messages WHERE to_user = ? AND id = ?`, r.to, r.id)
		}
		if err := s.session.ExecuteBatch(batch); err != nil {
			return 0, persistErr("delete conversation", err)
		}
	}

	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM messages WHERE conversation_key = ?`, key)
	batch.Query(`DELETE FROM user_conversations WHERE user_id = ? AND other_user_id = ?`, a, b)
	batch.Query(`DELETE FROM user_conversations WHERE user_id = ? AND other_user_id = ?`, b, a)
	if err := s.session.ExecuteBatch(batch); err != nil {
		return 0, persistErr("delete conversation", err)
	}
	return len(rows), nil
}

// DeleteAllForUser walks the user's conversation index, so it only reaches
// partners recorded there; Add always writes both index rows in the same
// logged batch as the message.
func (s *Scylla) DeleteAllForUser(ctx context.Context, userID string) error {
	partners, err := s.GetConversationPartners(ctx, userID)
	if err != nil {
		return err
	}
	for _, partner := range partners {
		if _, err := s.DeleteConversation(ctx, userID, partner); err != nil {
			return err
		}
	}
	if err := s.session.Query(`DELETE FROM undelivered_messages WHERE to_user = ?`, userID).
		WithContext(ctx).Exec(); err != nil {
		return persistErr("delete user", err)
	}
	return nil
}

func scanMessage(iter *gocql.Iter) (*model.Message, bool, error) {
	var (
		id                  int64
		from, to, kind      string
		content, payload    string
		sentAt, deliveredAt time.Time
	)
	if !iter.Scan(&id, &from, &to, &kind, &content, &payload, &sentAt, &deliveredAt) {
		return nil, false, nil
	}

	c, err := decodeContent(model.Kind(kind), content, payload)
	if err != nil {
		return nil, false, err
	}
	m := &model.Message{
		ID:      snowflake.ID(id).String(),
		From:    from,
		To:      to,
		Content: c,
		SentAt:  sentAt.UTC(),
	}
	if !deliveredAt.IsZero() {
		at := deliveredAt.UTC()
		m.DeliveredAt = &at
	}
	return m, true, nil
}

func encodeContent(m *model.Message) (content, payload string, err error) {
	switch c := m.Content.(type) {
	case model.Text:
		return c.Body, "", nil
	case model.Invite:
		raw, err := json.Marshal(c.Payload)
		if err != nil {
			return "", "", err
		}
		return "", string(raw), nil
	default:
		return "", "", fmt.Errorf("unknown message content %T", m.Content)
	}
}

func decodeContent(kind model.Kind, content, payload string) (model.Content, error) {
	switch kind {
	case model.KindText:
		return model.Text{Body: content}, nil
	case model.KindInvite:
		p := map[string]any{}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &p); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		return model.Invite{Payload: p}, nil
	default:
		return nil, fmt.Errorf("unknown message kind %q", kind)
	}
}
