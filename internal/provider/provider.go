// Package provider defines the neutral streaming contract between the agent
// runtime and concrete LLM backends. A backend turns a message list into a
// finite stream of discriminated chunks; the stream is consumed once and a
// fresh Stream call is needed per retry attempt.
package provider

import "context"

// Role values mirror the conversation roles providers understand.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a provider-neutral conversation entry.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolName   string
	ToolCalls  []ToolCallRequest
}

// ToolCallRequest is one tool invocation the model asked for. IDs are
// unique per request within a turn.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition describes a tool in the provider's schema vocabulary.
type ToolDefinition struct {
	Name            string
	Description     string
	ParameterSchema map[string]any
}

// ChunkType discriminates streamed response chunks.
type ChunkType string

const (
	ChunkTextDelta ChunkType = "text_delta"
	ChunkToolCall  ChunkType = "tool_call"
	ChunkDone      ChunkType = "done"
	ChunkError     ChunkType = "error"
)

// Chunk is one unit of a streamed provider response. Exactly one ChunkDone
// or ChunkError terminates a stream.
type Chunk struct {
	Type         ChunkType
	Text         string            // ChunkTextDelta
	ToolCalls    []ToolCallRequest // ChunkToolCall
	FinishReason string            // ChunkDone
	ErrorMessage string            // ChunkError
}

// StreamRequest carries everything a backend needs for one model call.
type StreamRequest struct {
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int
	Options   map[string]any
}

// Provider streams model responses. Implementations must close the returned
// channel after emitting the terminal chunk, and must honor ctx cancellation
// at every send.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req StreamRequest) (<-chan Chunk, error)
}
