package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kitebot/kite/internal/agent"
	"github.com/kitebot/kite/internal/session"
	"github.com/kitebot/kite/internal/store/postgres"
	redisstore "github.com/kitebot/kite/internal/store/redis"
	"github.com/kitebot/kite/internal/tool"
)

// turnRunner matches agent.Runtime's RunTurn.
type turnRunner interface {
	RunTurn(ctx context.Context, sess *session.Session, message string, tools *tool.Registry, maxTokens int) <-chan agent.Event
}

// Relay wraps a turn runner with the optional side channels: every event is
// mirrored to the session's Redis channel for watchers, and messages
// appended during the turn are archived to Postgres afterwards. Fanout and
// archive failures are logged, never surfaced into the turn.
type Relay struct {
	runner      turnRunner
	pubsub      *redisstore.PubSub       // nil disables fanout
	transcripts *postgres.TranscriptRepo // nil disables archiving
}

func NewRelay(runner turnRunner, pubsub *redisstore.PubSub, transcripts *postgres.TranscriptRepo) *Relay {
	return &Relay{runner: runner, pubsub: pubsub, transcripts: transcripts}
}

func (rl *Relay) RunTurn(ctx context.Context, sess *session.Session, message string, tools *tool.Registry, maxTokens int) <-chan agent.Event {
	out := make(chan agent.Event)

	go func() {
		defer close(out)

		before := sess.Len()
		for ev := range rl.runner.RunTurn(ctx, sess, message, tools, maxTokens) {
			rl.fanout(ctx, sess.Key(), ev)
			select {
			case out <- ev:
			case <-ctx.Done():
				// The inner runner watches the same context and will
				// close its channel shortly; drain it so the turn
				// goroutine is not stranded.
			}
		}

		rl.archive(sess, before)
	}()

	return out
}

func (rl *Relay) fanout(ctx context.Context, sessionKey string, ev agent.Event) {
	if rl.pubsub == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("session_key", sessionKey).Msg("relay: marshal event")
		return
	}
	if err := rl.pubsub.Publish(ctx, redisstore.SessionChannel(sessionKey), payload); err != nil {
		log.Warn().Err(err).Str("session_key", sessionKey).Msg("relay: publish event")
	}
}

// archive persists the messages the turn appended. Compression may have
// shifted indices; appends are idempotent by message ID, so overlap with a
// concurrent turn is harmless.
func (rl *Relay) archive(sess *session.Session, before int) {
	if rl.transcripts == nil {
		return
	}

	msgs := sess.Messages()
	if before > len(msgs) {
		before = 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, msg := range msgs[before:] {
		entry := postgres.FromMessage(sess.Key(), msg)
		if err := rl.transcripts.Append(ctx, entry); err != nil {
			log.Warn().Err(err).Str("session_key", sess.Key()).Msg("relay: archive message")
			return
		}
	}
}
