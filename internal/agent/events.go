package agent

// EventType categorizes turn lifecycle events.
type EventType string

const (
	EventLifecycle  EventType = "lifecycle"
	EventAssistant  EventType = "assistant"
	EventToolUse    EventType = "tool_use"
	EventToolResult EventType = "tool_result"
	EventRetry      EventType = "retry"
	EventError      EventType = "error"
)

// Event is the one thing a turn emits to its caller. Event order within a
// turn is significant: deltas precede the tool_use that follows them in the
// provider stream, and tool_result always follows its tool_use.
type Event struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
}

func lifecycleEvent(phase string) Event {
	return Event{Type: EventLifecycle, Data: map[string]any{"phase": phase}}
}

func assistantDeltaEvent(text string) Event {
	return Event{Type: EventAssistant, Data: map[string]any{
		"delta": map[string]any{"type": "text_delta", "text": text},
	}}
}

func toolUseEvent(name string, input map[string]any) Event {
	return Event{Type: EventToolUse, Data: map[string]any{
		"tool":  name,
		"input": input,
	}}
}

func toolResultEvent(name, result string, success bool) Event {
	return Event{Type: EventToolResult, Data: map[string]any{
		"tool":    name,
		"result":  result,
		"success": success,
	}}
}

func retryEvent(attempt, maxRetries int, delaySeconds float64, errMsg string) Event {
	return Event{Type: EventRetry, Data: map[string]any{
		"attempt":     attempt,
		"max_retries": maxRetries,
		"delay":       delaySeconds,
		"error":       errMsg,
	}}
}

func errorEvent(message, category string) Event {
	return Event{Type: EventError, Data: map[string]any{
		"message":  message,
		"category": category,
	}}
}
