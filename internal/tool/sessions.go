package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/kitebot/kite/internal/session"
)

// SessionsListTool lists live sessions with their message counts.
type SessionsListTool struct {
	Manager *session.Manager
}

func (t *SessionsListTool) Name() string { return "sessions_list" }

func (t *SessionsListTool) Description() string {
	return "List all available sessions with their message counts."
}

func (t *SessionsListTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}

func (t *SessionsListTool) Execute(_ context.Context, _ map[string]any) Result {
	keys := t.Manager.Keys()
	if len(keys) == 0 {
		return Ok("No sessions found")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d session(s):\n", len(keys))
	for _, key := range keys {
		s, ok := t.Manager.Get(key)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %d messages", key, s.Len())
		if last, hasLast := s.LastMessage(); hasLast {
			fmt.Fprintf(&sb, " (last: %s)", last.Timestamp.Format("2006-01-02 15:04:05"))
		}
		sb.WriteString("\n")
	}

	res := Ok(sb.String())
	res.Metadata = map[string]any{"count": len(keys)}
	return res
}

// SessionsHistoryTool returns recent messages from a session.
type SessionsHistoryTool struct {
	Manager *session.Manager
}

func (t *SessionsHistoryTool) Name() string { return "sessions_history" }

func (t *SessionsHistoryTool) Description() string {
	return "Get conversation history from a session."
}

func (t *SessionsHistoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_key": map[string]any{
				"type":        "string",
				"description": "Session to read history from",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of messages to return",
				"default":     50,
			},
		},
		"required": []string{"session_key"},
	}
}

func (t *SessionsHistoryTool) Execute(_ context.Context, args map[string]any) Result {
	key, ok := stringArg(args, "session_key")
	if !ok || key == "" {
		return Fail("sessions_history: session_key is required")
	}

	s, ok := t.Manager.Get(key)
	if !ok {
		return Fail(fmt.Sprintf("sessions_history: session %q not found", key))
	}

	limit, ok := intArg(args, "limit")
	if !ok || limit <= 0 {
		limit = 50
	}

	msgs := s.Messages()
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "[%s] %s\n", m.Role, m.Content)
	}

	res := Ok(sb.String())
	res.Metadata = map[string]any{"messages": len(msgs)}
	return res
}

// SessionsSendTool appends a user message to another session's log. The
// target session picks it up on its next turn; this tool does not trigger
// a turn itself, so an agent messaging its own session cannot recurse.
type SessionsSendTool struct {
	Manager *session.Manager
}

func (t *SessionsSendTool) Name() string { return "sessions_send" }

func (t *SessionsSendTool) Description() string {
	return "Send a message to another session."
}

func (t *SessionsSendTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"session_key": map[string]any{
				"type":        "string",
				"description": "Destination session",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Message text to deliver",
			},
		},
		"required": []string{"session_key", "message"},
	}
}

func (t *SessionsSendTool) Execute(_ context.Context, args map[string]any) Result {
	key, ok := stringArg(args, "session_key")
	if !ok || key == "" {
		return Fail("sessions_send: session_key is required")
	}
	message, ok := stringArg(args, "message")
	if !ok || message == "" {
		return Fail("sessions_send: message is required")
	}

	target := t.Manager.GetOrCreate(key)
	target.AddUser(message)

	return Ok(fmt.Sprintf("message delivered to session %q", key))
}
