// Package session holds the append-only conversation log the agent runtime
// reads from and writes to. A Session owns its messages: they are immutable
// once appended and only ever removed by middle truncation, never reordered.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall records a tool invocation requested by the assistant.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Message is one entry in a conversation log.
type Message struct {
	ID         uuid.UUID  `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Session is an insertion-ordered message log identified by a session key.
//
// Individual appends and reads are atomic; the session does not serialize
// whole turns. Callers that need strict single-writer semantics across a
// turn (e.g. an agent replying to itself via sessions_send) must serialize
// turns per session key themselves.
type Session struct {
	key       string
	createdAt time.Time

	mu       sync.Mutex
	messages []Message
}

// New creates an empty session for the given key.
func New(key string) *Session {
	return &Session{
		key:       key,
		createdAt: time.Now(),
	}
}

// Key returns the session's identity.
func (s *Session) Key() string { return s.key }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// AddSystem appends a system message. System messages survive truncation.
func (s *Session) AddSystem(text string) {
	s.append(Message{Role: RoleSystem, Content: text})
}

// AddUser appends a user message.
func (s *Session) AddUser(text string) {
	s.append(Message{Role: RoleUser, Content: text})
}

// AddAssistant appends an assistant message carrying any tool calls the
// model emitted alongside the text.
func (s *Session) AddAssistant(text string, toolCalls []ToolCall) {
	s.append(Message{Role: RoleAssistant, Content: text, ToolCalls: toolCalls})
}

// AddToolResult appends the output of an executed tool call, keyed by the
// call ID the provider assigned.
func (s *Session) AddToolResult(toolCallID, toolName, output string) {
	s.append(Message{
		Role:       RoleTool,
		Content:    output,
		ToolCallID: toolCallID,
		ToolName:   toolName,
	})
}

func (s *Session) append(msg Message) {
	msg.ID = uuid.New()
	msg.Timestamp = time.Now()

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// Len returns the number of messages in the log.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Messages returns a copy of the full log in insertion order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// MessagesForProvider returns the ordered message sequence in the form
// needed to resume the conversation with a provider. System messages are
// always included regardless of any truncation that has happened.
func (s *Session) MessagesForProvider() []Message {
	return s.Messages()
}

// LastMessage returns the most recent message, if any.
func (s *Session) LastMessage() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// TruncateMiddle removes all non-system messages except the most recent
// keepLastN, preserving the relative order of what remains. System messages
// are kept when keepSystem is true. Calling it again when the log is already
// within keepLastN is a no-op.
func (s *Session) TruncateMiddle(keepSystem bool, keepLastN int) {
	if keepLastN < 0 {
		keepLastN = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonSystem := 0
	for _, m := range s.messages {
		if m.Role != RoleSystem {
			nonSystem++
		}
	}
	drop := nonSystem - keepLastN
	if drop <= 0 && keepSystem {
		return
	}

	kept := make([]Message, 0, len(s.messages)-max(drop, 0))
	for _, m := range s.messages {
		if m.Role == RoleSystem {
			if keepSystem {
				kept = append(kept, m)
			}
			continue
		}
		if drop > 0 {
			drop--
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
}
