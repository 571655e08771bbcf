// Package server wires the HTTP gateway: REST routes under /api/v1,
// WebSocket endpoints under /ws, and the health check.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	v1 "github.com/kitebot/kite/internal/api/v1"
	"github.com/kitebot/kite/internal/api/ws"
	"github.com/kitebot/kite/internal/config"
	"github.com/kitebot/kite/internal/server/middleware"
	"github.com/kitebot/kite/internal/session"
	"github.com/kitebot/kite/internal/store/postgres"
	redisstore "github.com/kitebot/kite/internal/store/redis"
	"github.com/kitebot/kite/internal/tool"
)

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all routes wired. runner is usually a *Relay so
// turns reach the fanout and archive; pubsub and transcripts may be nil.
func New(ctx context.Context, cfg *config.Config, sessions *session.Manager, runner turnRunner, tools *tool.Registry, pubsub *redisstore.PubSub, transcripts *postgres.TranscriptRepo) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	hub := ws.NewHub(sessions, runner, tools, cfg.Provider.MaxTokens, pubsub)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	// REST routes.
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(ctx, 100, 200))

		apiConfig := huma.DefaultConfig("Kite API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)

		var archive v1.TranscriptArchive
		if transcripts != nil {
			archive = transcripts
		}
		registerAPIRoutes(api, sessions, runner, tools, archive, cfg.Provider.MaxTokens)
	})

	// WebSocket routes.
	router.Route("/ws", func(r chi.Router) {
		registerWSRoutes(r, hub)
	})

	// Health check.
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
