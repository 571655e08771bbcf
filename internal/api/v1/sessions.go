// Package v1 exposes the REST surface: session inspection plus a
// synchronous message endpoint that runs a full turn and returns the
// ordered event log alongside the assembled reply.
package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/kitebot/kite/internal/agent"
	"github.com/kitebot/kite/internal/session"
	"github.com/kitebot/kite/internal/tool"
)

// SessionSummary is the list view of one live session.
type SessionSummary struct {
	Key       string    `json:"key" doc:"Session key"`
	Messages  int       `json:"messages" doc:"Message count"`
	CreatedAt time.Time `json:"created_at" doc:"Creation time"`
}

// HistoryMessage is one transcript entry in API form.
type HistoryMessage struct {
	ID        string    `json:"id" doc:"Message ID"`
	Role      string    `json:"role" doc:"system, user, assistant or tool"`
	Content   string    `json:"content" doc:"Message text"`
	ToolName  string    `json:"tool_name,omitempty" doc:"Tool that produced this result, if any"`
	Timestamp time.Time `json:"timestamp" doc:"Append time"`
}

type ListSessionsOutput struct {
	Body []SessionSummary
}

type SessionHistoryInput struct {
	Key   string `path:"key" doc:"Session key"`
	Limit int    `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Max messages, newest kept"`
}

type SessionHistoryOutput struct {
	Body []HistoryMessage
}

type DeleteSessionInput struct {
	Key string `path:"key" doc:"Session key"`
}

type DeleteSessionOutput struct {
	Body struct {
		Deleted bool `json:"deleted"`
	}
}

type PostMessageInput struct {
	Key  string `path:"key" doc:"Session key"`
	Body struct {
		Message string `json:"message" minLength:"1" doc:"User message to run a turn with"`
	}
}

type PostMessageOutput struct {
	Body struct {
		Reply  string        `json:"reply" doc:"Concatenated assistant text"`
		Events []agent.Event `json:"events" doc:"Ordered turn events"`
	}
}

func RegisterSessionRoutes(api huma.API, sessions *session.Manager, runner TurnRunner, tools *tool.Registry, archive TranscriptArchive, maxTokens int) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List live sessions",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, _ *struct{}) (*ListSessionsOutput, error) {
		keys := sessions.Keys()
		out := make([]SessionSummary, 0, len(keys))
		for _, key := range keys {
			sess, ok := sessions.Get(key)
			if !ok {
				continue
			}
			out = append(out, SessionSummary{
				Key:       key,
				Messages:  sess.Len(),
				CreatedAt: sess.CreatedAt(),
			})
		}
		return &ListSessionsOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session-history",
		Method:      http.MethodGet,
		Path:        "/sessions/{key}/history",
		Summary:     "Get a session's message history",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *SessionHistoryInput) (*SessionHistoryOutput, error) {
		sess, ok := sessions.Get(input.Key)
		if !ok {
			// Not live; the archive may still hold the transcript.
			return archivedHistory(ctx, archive, input)
		}

		msgs := sess.Messages()
		if input.Limit > 0 && len(msgs) > input.Limit {
			msgs = msgs[len(msgs)-input.Limit:]
		}

		out := make([]HistoryMessage, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, HistoryMessage{
				ID:        m.ID.String(),
				Role:      string(m.Role),
				Content:   m.Content,
				ToolName:  m.ToolName,
				Timestamp: m.Timestamp,
			})
		}
		return &SessionHistoryOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-session",
		Method:      http.MethodDelete,
		Path:        "/sessions/{key}",
		Summary:     "Delete a session and its history",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *DeleteSessionInput) (*DeleteSessionOutput, error) {
		_, existed := sessions.Get(input.Key)
		sessions.Delete(input.Key)

		// The archive is best-effort observability; a failed purge is
		// logged, not surfaced.
		if archive != nil {
			if err := archive.DeleteBySession(ctx, input.Key); err != nil {
				log.Warn().Str("session_key", input.Key).Err(err).Msg("api: purge archived transcript")
			}
		}

		out := &DeleteSessionOutput{}
		out.Body.Deleted = existed
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "post-session-message",
		Method:      http.MethodPost,
		Path:        "/sessions/{key}/messages",
		Summary:     "Send a message and run one turn to completion",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *PostMessageInput) (*PostMessageOutput, error) {
		sess := sessions.GetOrCreate(input.Key)

		// Turn failures are in-band events, not HTTP errors: the turn
		// itself completed even when the model call did not.
		var (
			events []agent.Event
			reply  string
		)
		for ev := range runner.RunTurn(ctx, sess, input.Body.Message, tools, maxTokens) {
			events = append(events, ev)
			if ev.Type == agent.EventAssistant {
				if delta, ok := ev.Data["delta"].(map[string]any); ok {
					if text, ok := delta["text"].(string); ok {
						reply += text
					}
				}
			}
		}

		out := &PostMessageOutput{}
		out.Body.Reply = reply
		out.Body.Events = events
		return out, nil
	})
}

// archivedHistory serves history for a session that is no longer live,
// keeping the newest entries the way the live path does.
func archivedHistory(ctx context.Context, archive TranscriptArchive, input *SessionHistoryInput) (*SessionHistoryOutput, error) {
	if archive == nil {
		return nil, huma.Error404NotFound("session not found: " + input.Key)
	}

	count, err := archive.CountBySession(ctx, input.Key)
	if err != nil {
		return nil, huma.Error500InternalServerError("transcript archive unavailable", err)
	}
	if count == 0 {
		return nil, huma.Error404NotFound("session not found: " + input.Key)
	}

	limit := input.Limit
	if limit <= 0 || int64(limit) > count {
		limit = int(count)
	}
	offset := int(count) - limit

	entries, err := archive.ListBySession(ctx, input.Key, limit, offset)
	if err != nil {
		return nil, huma.Error500InternalServerError("transcript archive unavailable", err)
	}

	out := make([]HistoryMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryMessage{
			ID:        e.ID.String(),
			Role:      e.Role,
			Content:   e.Content,
			ToolName:  e.ToolName,
			Timestamp: e.CreatedAt,
		})
	}
	return &SessionHistoryOutput{Body: out}, nil
}
