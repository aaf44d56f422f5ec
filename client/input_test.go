package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		peer  string
		check func(t *testing.T, in input)
	}{
		{"chat", "hello there", "bob", func(t *testing.T, in input) {
			assert.Equal(t, map[string]any{"type": "CHAT", "to": "bob", "content": "hello there"}, in.frame)
		}},
		{"chat without peer", "hello", "", func(t *testing.T, in input) {
			assert.ErrorIs(t, in.err, errNoPeer)
			assert.Nil(t, in.frame)
		}},
		{"switch peer", "/to carol", "bob", func(t *testing.T, in input) {
			assert.Equal(t, "carol", in.peer)
			assert.Nil(t, in.frame)
		}},
		{"invite", "/invite inv-42", "bob", func(t *testing.T, in input) {
			assert.Equal(t, "GAME_INVITE", in.frame["type"])
			assert.Equal(t, map[string]any{"invitationId": "inv-42"}, in.frame["payload"])
		}},
		{"quit", "/quit", "bob", func(t *testing.T, in input) {
			assert.True(t, in.quit)
		}},
		{"unknown command", "/dance now", "bob", func(t *testing.T, in input) {
			assert.EqualError(t, in.err, `unknown command "/dance"`)
		}},
		{"blank", "   ", "bob", func(t *testing.T, in input) {
			assert.Nil(t, in.frame)
			assert.NoError(t, in.err)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, parseInput(tt.line, tt.peer))
		})
	}
}

func TestRender(t *testing.T) {
	assert.Equal(t, "alice: hi", render([]byte(`{"type":"CHAT","from":"alice","content":"hi","sentAt":"2026-01-01T00:00:00Z"}`)))
	assert.Equal(t, `alice invited you: {"invitationId":"x"}`, render([]byte(`{"type":"GAME_INVITE","from":"alice","payload":{"invitationId":"x"}}`)))
	assert.Equal(t, "error USER_BLOCKED: blocked", render([]byte(`{"type":"ERROR","code":"USER_BLOCKED","message":"blocked"}`)))
	assert.Equal(t, "raw: nope", render([]byte("nope")))
}
