package mailbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mahaj/chat-delivery/pkg/model"
)

// Postgres is a Mailbox over a single messages table.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

func (s *Postgres) Add(ctx context.Context, m *model.Message) (string, error) {
	var (
		content *string
		payload []byte
	)
	switch c := m.Content.(type) {
	case model.Text:
		content = &c.Body
	case model.Invite:
		p := c.Payload
		if p == nil {
			p = map[string]any{}
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return "", persistErr("add", err)
		}
		payload = raw
	}

	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, from_user_id, to_user_id, type, content, payload, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, m.From, m.To, string(m.Kind()), content, payload, m.SentAt)
	if err != nil {
		return "", persistErr("add", err)
	}

	m.ID = id.String()
	m.DeliveredAt = nil
	return m.ID, nil
}

const pgSelectMessage = `SELECT id, from_user_id, to_user_id, type, content, payload, sent_at, delivered_at FROM messages`

func (s *Postgres) GetConversation(ctx context.Context, a, b string, limit int) ([]*model.Message, error) {
	rows, err := s.pool.Query(ctx, pgSelectMessage+`
		WHERE (from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1)
		ORDER BY sent_at ASC, seq ASC
		LIMIT $3
	`, a, b, normalizeLimit(limit))
	if err != nil {
		return nil, persistErr("get conversation", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, persistErr("get conversation", err)
	}
	return msgs, nil
}

func (s *Postgres) GetConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (partner) partner, COALESCE(content, ''), type, sent_at, from_user_id
		FROM (
			SELECT CASE WHEN from_user_id = $1 THEN to_user_id ELSE from_user_id END AS partner,
				content, type, sent_at, from_user_id, seq
			FROM messages
			WHERE from_user_id = $1 OR to_user_id = $1
		) m
		ORDER BY partner, sent_at DESC, seq DESC
	`, userID)
	if err != nil {
		return nil, persistErr("get conversations", err)
	}
	defer rows.Close()

	var summaries []model.ConversationSummary
	for rows.Next() {
		var (
			c    model.ConversationSummary
			kind string
		)
		if err := rows.Scan(&c.PartnerID, &c.LastMessage, &kind, &c.LastMessageAt, &c.LastMessageFrom); err != nil {
			return nil, persistErr("get conversations", err)
		}
		c.LastMessageType = model.Kind(kind)
		c.LastMessageAt = c.LastMessageAt.UTC()
		summaries = append(summaries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("get conversations", err)
	}

	model.SortSummaries(summaries)
	return summaries, nil
}

func (s *Postgres) GetConversationPartners(ctx context.Context, userID string) ([]string, error) {
	summaries, err := s.GetConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	return partnersOf(summaries), nil
}

func (s *Postgres) GetUndeliveredMessages(ctx context.Context, userID string, since time.Duration, limit int) ([]*model.Message, error) {
	rows, err := s.pool.Query(ctx, pgSelectMessage+`
		WHERE to_user_id = $1 AND delivered_at IS NULL AND sent_at >= $2
		ORDER BY sent_at ASC, seq ASC
		LIMIT $3
	`, userID, s.now().Add(-since), normalizeLimit(limit))
	if err != nil {
		return nil, persistErr("get undelivered", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, persistErr("get undelivered", err)
	}
	return msgs, nil
}

func (s *Postgres) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	uuids := make([]string, 0, len(ids))
	for _, raw := range ids {
		// ids that are not uuids cannot exist in this store
		if _, err := uuid.Parse(raw); err == nil {
			uuids = append(uuids, raw)
		}
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET delivered_at = $2
		WHERE id = ANY($1::uuid[]) AND delivered_at IS NULL
	`, uuids, s.now())
	if err != nil {
		return persistErr("mark delivered", err)
	}
	return nil
}

func (s *Postgres) DeleteConversation(ctx context.Context, a, b string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM messages
		WHERE (from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1)
	`, a, b)
	if err != nil {
		return 0, persistErr("delete conversation", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Postgres) DeleteAllForUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE from_user_id = $1 OR to_user_id = $1`, userID); err != nil {
		return persistErr("delete user", err)
	}
	return nil
}

func collectMessages(rows pgx.Rows) ([]*model.Message, error) {
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var (
			id          uuid.UUID
			m           model.Message
			kind        string
			content     *string
			payload     []byte
			deliveredAt *time.Time
		)
		if err := rows.Scan(&id, &m.From, &m.To, &kind, &content, &payload, &m.SentAt, &deliveredAt); err != nil {
			return nil, err
		}

		var body, raw string
		if content != nil {
			body = *content
		}
		raw = string(payload)
		c, err := decodeContent(model.Kind(kind), body, raw)
		if err != nil {
			return nil, err
		}

		m.ID = id.String()
		m.Content = c
		m.SentAt = m.SentAt.UTC()
		if deliveredAt != nil {
			at := deliveredAt.UTC()
			m.DeliveredAt = &at
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
