package model

import "encoding/json"

// ErrorCode is the stable code carried by an ERROR frame.
type ErrorCode string

const (
	CodeInvalidJSON     ErrorCode = "INVALID_JSON"
	CodeInvalidPayload  ErrorCode = "INVALID_PAYLOAD"
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	CodeUserBlocked     ErrorCode = "USER_BLOCKED"
	CodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

const TypeError = "ERROR"

var errorMessages = map[ErrorCode]string{
	CodeInvalidJSON:     "Invalid JSON payload",
	CodeInvalidPayload:  "Invalid message structure",
	CodeUnauthenticated: "User is not authenticated",
	CodeUserBlocked:     "You cannot communicate with this user",
	CodeInternalError:   "Unable to process message at this time",
}

// InboundFrame is what a client sends over the websocket.
type InboundFrame struct {
	Type    Kind            `json:"type" validate:"oneof=CHAT GAME_INVITE"`
	To      string          `json:"to" validate:"required"`
	Content string          `json:"content" validate:"required_if=Type CHAT"`
	Payload json.RawMessage `json:"payload" validate:"required_if=Type GAME_INVITE"`
}

// ErrorFrame is sent back to a sender whose frame was rejected.
type ErrorFrame struct {
	Type    string    `json:"type"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func NewErrorFrame(code ErrorCode) ErrorFrame {
	return ErrorFrame{Type: TypeError, Code: code, Message: errorMessages[code]}
}

type textFrame struct {
	Type    Kind   `json:"type"`
	From    string `json:"from"`
	Content string `json:"content"`
	SentAt  string `json:"sentAt"`
}

type inviteFrame struct {
	Type    Kind           `json:"type"`
	From    string         `json:"from"`
	Payload map[string]any `json:"payload"`
	SentAt  string         `json:"sentAt"`
}

// OutboundFrame is the frame pushed to the recipient of m.
func OutboundFrame(m *Message) any {
	if inv, ok := m.Content.(Invite); ok {
		payload := inv.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		return inviteFrame{Type: KindInvite, From: m.From, Payload: payload, SentAt: FormatTime(m.SentAt)}
	}
	return textFrame{Type: KindText, From: m.From, Content: m.Body(), SentAt: FormatTime(m.SentAt)}
}
