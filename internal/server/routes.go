package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/kitebot/kite/internal/api/v1"
	"github.com/kitebot/kite/internal/api/ws"
	"github.com/kitebot/kite/internal/session"
	"github.com/kitebot/kite/internal/tool"
)

func registerAPIRoutes(api huma.API, sessions *session.Manager, runner v1.TurnRunner, tools *tool.Registry, archive v1.TranscriptArchive, maxTokens int) {
	v1.RegisterSessionRoutes(api, sessions, runner, tools, archive, maxTokens)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/sessions/{key}/chat", hub.ServeChat)
	r.Get("/sessions/{key}/watch", hub.ServeWatch)
}
