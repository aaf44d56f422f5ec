package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type input struct {
	frame map[string]any
	peer  string
	quit  bool
	err   error
}

var errNoPeer = errors.New("no recipient: use /to <user> first")

// parseInput turns one line typed by the user into a frame or a command.
func parseInput(line, peer string) input {
	line = strings.TrimSpace(line)
	in := input{peer: peer}

	switch {
	case line == "":
		return in
	case line == "/quit":
		in.quit = true
		return in
	case strings.HasPrefix(line, "/to "):
		in.peer = strings.TrimSpace(strings.TrimPrefix(line, "/to "))
		return in
	case strings.HasPrefix(line, "/invite "):
		if peer == "" {
			in.err = errNoPeer
			return in
		}
		id := strings.TrimSpace(strings.TrimPrefix(line, "/invite "))
		in.frame = map[string]any{
			"type":    "GAME_INVITE",
			"to":      peer,
			"payload": map[string]any{"invitationId": id},
		}
		return in
	case strings.HasPrefix(line, "/"):
		in.err = fmt.Errorf("unknown command %q", strings.Fields(line)[0])
		return in
	}

	if peer == "" {
		in.err = errNoPeer
		return in
	}
	in.frame = map[string]any{"type": "CHAT", "to": peer, "content": line}
	return in
}

type incoming struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	Content string          `json:"content"`
	Payload json.RawMessage `json:"payload"`
	SentAt  string          `json:"sentAt"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

// render formats a frame received from the gateway for the terminal.
func render(raw []byte) string {
	var f incoming
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Sprintf("raw: %s", raw)
	}
	switch f.Type {
	case "CHAT":
		return fmt.Sprintf("%s: %s", f.From, f.Content)
	case "GAME_INVITE":
		return fmt.Sprintf("%s invited you: %s", f.From, f.Payload)
	case "ERROR":
		return fmt.Sprintf("error %s: %s", f.Code, f.Message)
	}
	return fmt.Sprintf("raw: %s", raw)
}
