// Package ws carries turn events over WebSockets: a chat socket that runs
// turns for the connected client, and a watch socket that mirrors another
// session's events via the Redis fanout.
package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/kitebot/kite/internal/agent"
	"github.com/kitebot/kite/internal/session"
	redisstore "github.com/kitebot/kite/internal/store/redis"
	"github.com/kitebot/kite/internal/tool"
)

// TurnRunner abstracts turn execution for socket testing.
// *agent.Runtime satisfies this interface.
type TurnRunner interface {
	RunTurn(ctx context.Context, sess *session.Session, message string, tools *tool.Registry, maxTokens int) <-chan agent.Event
}

// Hub serves the WebSocket endpoints. pubsub may be nil; the watch socket
// then reports that fanout is not configured.
type Hub struct {
	sessions  *session.Manager
	runner    TurnRunner
	tools     *tool.Registry
	maxTokens int
	pubsub    *redisstore.PubSub
}

func NewHub(sessions *session.Manager, runner TurnRunner, tools *tool.Registry, maxTokens int, pubsub *redisstore.PubSub) *Hub {
	return &Hub{
		sessions:  sessions,
		runner:    runner,
		tools:     tools,
		maxTokens: maxTokens,
		pubsub:    pubsub,
	}
}

// ServeChat handles an interactive conversation socket. Each text frame
// from the client is one user message; the turn's events are written back
// as JSON frames in order before the next message is read.
func (h *Hub) ServeChat(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "missing session key", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	sess := h.sessions.GetOrCreate(key)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			// Normal closure and cancellation both land here.
			log.Debug().Err(err).Str("session_key", key).Msg("websocket read")
			return
		}
		if msgType != websocket.MessageText || len(data) == 0 {
			continue
		}

		for ev := range h.runner.RunTurn(ctx, sess, string(data), h.tools, h.maxTokens) {
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Msg("ws: marshal event")
				continue
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, payload); writeErr != nil {
				log.Debug().Err(writeErr).Str("session_key", key).Msg("websocket write")
				return
			}
		}
	}
}

// ServeWatch mirrors a session's turn events to a read-only client.
// Subscribes to Redis channel "session:<key>".
func (h *Hub) ServeWatch(w http.ResponseWriter, r *http.Request) {
	if h.pubsub == nil {
		http.Error(w, "event fanout not configured", http.StatusNotImplemented)
		return
	}

	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "missing session key", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	channel := redisstore.SessionChannel(key)

	messages, cleanup, err := h.pubsub.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}
