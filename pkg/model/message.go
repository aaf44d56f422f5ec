package model

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// Kind names the variant of a message. The values double as the wire "type".
type Kind string

const (
	KindText   Kind = "CHAT"
	KindInvite Kind = "GAME_INVITE"
)

// Content is the body of a message: either Text or Invite.
type Content interface {
	Kind() Kind
	isContent()
}

// Text is a plain chat line.
type Text struct {
	Body string
}

func (Text) Kind() Kind { return KindText }
func (Text) isContent() {}

// Invite carries a structured event invitation (e.g. a game room).
type Invite struct {
	Payload map[string]any
}

func (Invite) Kind() Kind { return KindInvite }
func (Invite) isContent() {}

// Message is a durable direct message between two users.
type Message struct {
	ID          string
	From        string
	To          string
	Content     Content
	SentAt      time.Time
	DeliveredAt *time.Time
}

func (m *Message) Kind() Kind {
	if m.Content == nil {
		return ""
	}
	return m.Content.Kind()
}

// Body returns the text body, or "" for invites.
func (m *Message) Body() string {
	if t, ok := m.Content.(Text); ok {
		return t.Body
	}
	return ""
}

// Payload returns the invite payload, or nil for text messages.
func (m *Message) Payload() map[string]any {
	if inv, ok := m.Content.(Invite); ok {
		return inv.Payload
	}
	return nil
}

func (m *Message) Delivered() bool { return m.DeliveredAt != nil }

// PartnerOf returns the participant that is not userID.
func (m *Message) PartnerOf(userID string) string {
	if m.From == userID {
		return m.To
	}
	return m.From
}

type storedText struct {
	ID      string `json:"id"`
	Type    Kind   `json:"type"`
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
	SentAt  string `json:"sentAt"`
}

type storedInvite struct {
	ID      string         `json:"id"`
	Type    Kind           `json:"type"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	Payload map[string]any `json:"payload"`
	SentAt  string         `json:"sentAt"`
}

// MarshalJSON renders the history representation of a message.
func (m *Message) MarshalJSON() ([]byte, error) {
	sentAt := FormatTime(m.SentAt)
	if inv, ok := m.Content.(Invite); ok {
		payload := inv.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		return json.Marshal(storedInvite{ID: m.ID, Type: KindInvite, From: m.From, To: m.To, Payload: payload, SentAt: sentAt})
	}
	return json.Marshal(storedText{ID: m.ID, Type: KindText, From: m.From, To: m.To, Content: m.Body(), SentAt: sentAt})
}

// ConversationKey returns the canonical key for the unordered pair {a, b}.
// The first id is length-prefixed, so ids containing the separator cannot
// make two different pairs share a key.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + ":" + b
}

// Between reports whether m was exchanged between a and b, in either
// direction.
func (m *Message) Between(a, b string) bool {
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}

// ConversationSummary is the latest message exchanged with one partner.
type ConversationSummary struct {
	PartnerID       string    `json:"partnerId"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageType Kind      `json:"lastMessageType"`
	LastMessageAt   time.Time `json:"lastMessageAt"`
	LastMessageFrom string    `json:"lastMessageFrom"`
}

// SummaryOf builds the conversation summary of m as seen by userID.
func SummaryOf(userID string, m *Message) ConversationSummary {
	return ConversationSummary{
		PartnerID:       m.PartnerOf(userID),
		LastMessage:     m.Body(),
		LastMessageType: m.Kind(),
		LastMessageAt:   m.SentAt,
		LastMessageFrom: m.From,
	}
}

// SortSummaries orders summaries most recent first.
func SortSummaries(s []ConversationSummary) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].LastMessageAt.After(s[j].LastMessageAt)
	})
}

// FormatTime renders timestamps the way they travel on the wire.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
