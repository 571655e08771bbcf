package v1

import (
	"context"

	"github.com/kitebot/kite/internal/agent"
	"github.com/kitebot/kite/internal/session"
	"github.com/kitebot/kite/internal/store/postgres"
	"github.com/kitebot/kite/internal/tool"
)

// TurnRunner abstracts turn execution for handler testing.
// *agent.Runtime satisfies this interface.
type TurnRunner interface {
	RunTurn(ctx context.Context, sess *session.Session, message string, tools *tool.Registry, maxTokens int) <-chan agent.Event
}

// TranscriptArchive is the durable history store behind the session
// endpoints. *postgres.TranscriptRepo satisfies this interface; a nil
// archive disables archive-backed behavior.
type TranscriptArchive interface {
	ListBySession(ctx context.Context, sessionKey string, limit, offset int) ([]*postgres.TranscriptEntry, error)
	CountBySession(ctx context.Context, sessionKey string) (int64, error)
	DeleteBySession(ctx context.Context, sessionKey string) error
}
