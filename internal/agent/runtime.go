// Package agent runs conversation turns: it streams a model response,
// dispatches tool calls the model emits mid-turn, keeps the conversation
// inside the model's context window, and retries transient provider
// failures with bounded exponential backoff. A turn never fails past its
// own boundary; every outcome is surfaced on the event stream.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kitebot/kite/internal/budget"
	"github.com/kitebot/kite/internal/provider"
	"github.com/kitebot/kite/internal/recovery"
	"github.com/kitebot/kite/internal/session"
	"github.com/kitebot/kite/internal/tool"
)

// DefaultMaxRetries bounds the retry loop per turn.
const DefaultMaxRetries = 3

// errCancelled signals that the turn's context was cancelled; the event
// stream just stops, no terminal events are owed.
var errCancelled = errors.New("agent: turn cancelled")

// Runtime executes turns against one provider. Safe for concurrent use;
// concurrent turns on the same session are not serialized here (see
// session.Session).
type Runtime struct {
	provider     provider.Provider
	budget       *budget.Manager // nil disables context management
	systemPrompt string
	maxRetries   int
	backoffBase  time.Duration
	backoffMax   time.Duration
}

// Option adjusts a Runtime.
type Option func(*Runtime)

// WithMaxRetries overrides the retry bound.
func WithMaxRetries(n int) Option {
	return func(r *Runtime) { r.maxRetries = n }
}

// WithBudget enables context-window management.
func WithBudget(b *budget.Manager) Option {
	return func(r *Runtime) { r.budget = b }
}

// WithSystemPrompt seeds new sessions with a system message before their
// first turn.
func WithSystemPrompt(prompt string) Option {
	return func(r *Runtime) { r.systemPrompt = prompt }
}

// WithBackoff overrides the retry delay schedule.
func WithBackoff(base, max time.Duration) Option {
	return func(r *Runtime) {
		r.backoffBase = base
		r.backoffMax = max
	}
}

// New creates a Runtime for the given provider.
func New(p provider.Provider, opts ...Option) *Runtime {
	r := &Runtime{
		provider:    p,
		maxRetries:  DefaultMaxRetries,
		backoffBase: recovery.DefaultBackoffBase,
		backoffMax:  recovery.DefaultBackoffMax,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Provider returns the backend this runtime streams from.
func (r *Runtime) Provider() provider.Provider { return r.provider }

// RunTurn executes one turn: append the user message, stream the model's
// response, dispatch tool calls, and emit lifecycle events in causal order.
// The returned channel is single-pass and closed when the turn reaches a
// terminal state or ctx is cancelled.
func (r *Runtime) RunTurn(ctx context.Context, sess *session.Session, message string, tools *tool.Registry, maxTokens int) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		r.runTurn(ctx, sess, message, tools, maxTokens, out)
	}()
	return out
}

// streamOutcome tells the turn loop what to do after one provider stream.
type streamOutcome int

const (
	outcomeDone streamOutcome = iota
	// outcomeContinue: the stream ended after tool dispatch without a done
	// chunk; re-enter streaming so the model can consume the tool results.
	outcomeContinue
)

func (r *Runtime) runTurn(ctx context.Context, sess *session.Session, message string, tools *tool.Registry, maxTokens int, out chan<- Event) {
	if ctx.Err() != nil {
		return
	}

	if r.systemPrompt != "" && sess.Len() == 0 {
		sess.AddSystem(r.systemPrompt)
	}
	sess.AddUser(message)

	// Context management happens before the first provider call so a
	// pruned history is what every retry attempt sees.
	overflow := r.manageContext(sess)

	if !emit(ctx, out, lifecycleEvent("start")) {
		return
	}

	if overflow != nil {
		// Compression could not bring the conversation under the window.
		// Retrying internally cannot change that; surface it and let the
		// caller shrink the request or clear the session.
		emit(ctx, out, errorEvent(recovery.Format(overflow), string(recovery.Classify(overflow))))
		emit(ctx, out, lifecycleEvent("end"))
		return
	}

	attempt := 0
	for {
		outcome, err := r.streamOnce(ctx, sess, tools, maxTokens, out)
		if err == nil {
			switch outcome {
			case outcomeContinue:
				continue
			default:
				emit(ctx, out, lifecycleEvent("end"))
				return
			}
		}
		if errors.Is(err, errCancelled) || ctx.Err() != nil {
			return
		}

		category := string(recovery.Classify(err))

		if !recovery.Retryable(err) {
			log.Error().Str("session_key", sess.Key()).Str("category", category).Err(err).Msg("agent: non-retryable turn failure")
			emit(ctx, out, errorEvent(recovery.Format(err), category))
			emit(ctx, out, lifecycleEvent("end"))
			return
		}
		if attempt >= r.maxRetries {
			log.Error().Str("session_key", sess.Key()).Int("attempts", attempt).Err(err).Msg("agent: retries exhausted")
			emit(ctx, out, errorEvent("Max retries exceeded: "+recovery.Format(err), category))
			emit(ctx, out, lifecycleEvent("end"))
			return
		}

		attempt++
		delay := recovery.BackoffWith(attempt, r.backoffBase, r.backoffMax)
		log.Warn().
			Str("session_key", sess.Key()).
			Int("attempt", attempt).
			Int("max_retries", r.maxRetries).
			Dur("delay", delay).
			Err(err).
			Msg("agent: retrying after transient failure")

		if !emit(ctx, out, retryEvent(attempt, r.maxRetries, delay.Seconds(), err.Error())) {
			return
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// manageContext compresses the session if it is over the threshold and
// returns a context-overflow error when even compression cannot fit the
// conversation into the window.
func (r *Runtime) manageContext(sess *session.Session) error {
	if r.budget == nil {
		return nil
	}

	used := budget.EstimateTokens(sess.MessagesForProvider())
	window := r.budget.Check(used)
	if !window.ShouldCompress {
		return nil
	}

	log.Info().
		Str("session_key", sess.Key()).
		Int("used_tokens", window.UsedTokens).
		Int("total_tokens", window.TotalTokens).
		Msg("agent: context window under pressure")

	r.budget.Compress(sess)

	used = budget.EstimateTokens(sess.MessagesForProvider())
	if r.budget.Exceeded(used) {
		return recovery.NewContextOverflow(
			fmt.Sprintf("conversation exceeds context window after compression (%d/%d estimated tokens)", used, r.budget.TotalTokens()),
			used, r.budget.TotalTokens(),
		)
	}
	return nil
}

// streamOnce runs a single provider stream attempt. Durable session
// mutations (tool results) survive a later retry; the partial text buffer
// does not.
func (r *Runtime) streamOnce(ctx context.Context, sess *session.Session, tools *tool.Registry, maxTokens int, out chan<- Event) (streamOutcome, error) {
	req := provider.StreamRequest{
		Messages:  toProviderMessages(sess.MessagesForProvider()),
		Tools:     toolDefinitions(tools),
		MaxTokens: maxTokens,
	}

	chunks, err := r.provider.Stream(ctx, req)
	if err != nil {
		return outcomeDone, err
	}

	var (
		text        strings.Builder
		toolCalls   []session.ToolCall
		sawToolCall bool
	)

	for {
		if ctx.Err() != nil {
			return outcomeDone, errCancelled
		}
		select {
		case <-ctx.Done():
			return outcomeDone, errCancelled
		case chunk, ok := <-chunks:
			if !ok {
				if sawToolCall {
					// Provider closed the stream after tool dispatch
					// without a terminal chunk; flush what we have and
					// stream again with the tool results in context.
					r.appendAssistant(sess, text.String(), toolCalls)
					return outcomeContinue, nil
				}
				return outcomeDone, recovery.NewProvider("provider stream ended without done or error")
			}

			switch chunk.Type {
			case provider.ChunkTextDelta:
				text.WriteString(chunk.Text)
				if !emit(ctx, out, assistantDeltaEvent(chunk.Text)) {
					return outcomeDone, errCancelled
				}

			case provider.ChunkToolCall:
				sawToolCall = true
				for _, call := range chunk.ToolCalls {
					toolCalls = append(toolCalls, session.ToolCall{
						ID:        call.ID,
						Name:      call.Name,
						Arguments: call.Arguments,
					})
					if !r.dispatchTool(ctx, sess, tools, call, out) {
						return outcomeDone, errCancelled
					}
				}

			case provider.ChunkDone:
				r.appendAssistant(sess, text.String(), toolCalls)
				return outcomeDone, nil

			case provider.ChunkError:
				return outcomeDone, errors.New(chunk.ErrorMessage)
			}
		}
	}
}

// appendAssistant records the accumulated assistant text. Append is atomic
// from the caller's perspective; an empty buffer appends nothing.
func (r *Runtime) appendAssistant(sess *session.Session, text string, toolCalls []session.ToolCall) {
	if text == "" {
		return
	}
	sess.AddAssistant(text, toolCalls)
}

// dispatchTool executes one requested call and records its result. Tool
// failures never abort the turn: they become failed results. A tool name
// the registry does not know gets a synthetic failed result so the model
// learns the call went nowhere instead of it being silently dropped.
// Returns false when the turn was cancelled mid-dispatch.
func (r *Runtime) dispatchTool(ctx context.Context, sess *session.Session, tools *tool.Registry, call provider.ToolCallRequest, out chan<- Event) bool {
	if !emit(ctx, out, toolUseEvent(call.Name, call.Arguments)) {
		return false
	}

	var result tool.Result
	if tools == nil {
		result = tool.Fail("no tools available")
	} else if impl, ok := tools.Get(call.Name); ok {
		result = safeExecute(ctx, impl, call.Arguments)
	} else {
		result = tool.Fail(fmt.Sprintf("tool not found: %s", call.Name))
	}

	output := result.Output
	if !result.Success {
		output = result.Error
		log.Warn().Str("session_key", sess.Key()).Str("tool", call.Name).Str("error", result.Error).Msg("agent: tool execution failed")
	}

	// The session mutation lands before the event so cancellation between
	// the two cannot leave a dangling tool_use in the log.
	sess.AddToolResult(call.ID, call.Name, output)

	return emit(ctx, out, toolResultEvent(call.Name, output, result.Success))
}

// safeExecute guards the Tool contract: execution failure of any kind,
// panics included, becomes a failed result.
func safeExecute(ctx context.Context, impl tool.Tool, args map[string]any) (result tool.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			result = tool.Fail(fmt.Sprintf("tool panicked: %v", rec))
		}
	}()
	return impl.Execute(ctx, args)
}

func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func toProviderMessages(msgs []session.Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		pm := provider.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, provider.ToolCallRequest(tc))
		}
		out = append(out, pm)
	}
	return out
}

func toolDefinitions(tools *tool.Registry) []provider.ToolDefinition {
	if tools == nil {
		return nil
	}
	list := tools.List()
	out := make([]provider.ToolDefinition, 0, len(list))
	for _, t := range list {
		out = append(out, provider.ToolDefinition{
			Name:            t.Name(),
			Description:     t.Description(),
			ParameterSchema: t.Schema(),
		})
	}
	return out
}
