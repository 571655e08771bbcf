// Package tool defines the capability the model may invoke mid-turn, plus
// the registry the runtime dispatches against and the built-in tools.
//
// Execute never returns a Go error: all failure is encoded in the Result so
// a broken tool can never abort a turn.
package tool

import "context"

// Result is the outcome of one tool execution.
type Result struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Ok builds a successful result.
func Ok(output string) Result {
	return Result{Success: true, Output: output}
}

// Fail builds a failed result.
func Fail(errMsg string) Result {
	return Result{Error: errMsg}
}

// Tool is an external capability exposed to the model.
type Tool interface {
	// Name is the identifier the model calls the tool by.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Schema is the JSON-Schema-like parameter description sent to the
	// provider.
	Schema() map[string]any

	// Execute runs the tool. Implementations must not panic; failures are
	// reported in the Result.
	Execute(ctx context.Context, args map[string]any) Result
}

// stringArg extracts a string argument, reporting whether it was present
// and a string.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// intArg extracts an integer argument. Providers decode JSON numbers as
// float64, so both forms are accepted.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
