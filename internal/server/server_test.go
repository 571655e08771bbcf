package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitebot/kite/internal/agent"
	"github.com/kitebot/kite/internal/config"
	"github.com/kitebot/kite/internal/session"
	"github.com/kitebot/kite/internal/tool"
)

type scriptedRunner struct {
	events []agent.Event
}

func (s *scriptedRunner) RunTurn(_ context.Context, sess *session.Session, message string, _ *tool.Registry, _ int) <-chan agent.Event {
	sess.AddUser(message)
	ch := make(chan agent.Event, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:         ":0",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			CORSOrigins:  []string{"*"},
		},
		Provider: config.ProviderConfig{
			Model:         "anthropic/claude-sonnet-4-20250514",
			MaxTokens:     1024,
			ContextTokens: 200000,
			MaxRetries:    3,
		},
	}
}

func TestRelayPassesEventsThrough(t *testing.T) {
	t.Parallel()

	events := []agent.Event{
		{Type: agent.EventLifecycle, Data: map[string]any{"phase": "start"}},
		{Type: agent.EventAssistant, Data: map[string]any{"delta": map[string]any{"type": "text_delta", "text": "hi"}}},
		{Type: agent.EventLifecycle, Data: map[string]any{"phase": "end"}},
	}
	relay := NewRelay(&scriptedRunner{events: events}, nil, nil)
	sess := session.New("relay-test")

	var got []agent.Event
	for ev := range relay.RunTurn(context.Background(), sess, "hi", nil, 1024) {
		got = append(got, ev)
	}

	require.Len(t, got, 3)
	assert.Equal(t, agent.EventLifecycle, got[0].Type)
	assert.Equal(t, agent.EventAssistant, got[1].Type)
	assert.Equal(t, 1, sess.Len())
}

func TestServerRoutes(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{events: []agent.Event{
		{Type: agent.EventLifecycle, Data: map[string]any{"phase": "start"}},
		{Type: agent.EventLifecycle, Data: map[string]any{"phase": "end"}},
	}}
	srv := New(context.Background(), testConfig(), session.NewManager(), runner, tool.NewRegistry(), nil, nil)

	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("sessions list", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/sessions")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("watch socket needs fanout", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/ws/sessions/cli/watch")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	})
}
