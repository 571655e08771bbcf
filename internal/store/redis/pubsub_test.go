package redis_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	redisstore "github.com/kitebot/kite/internal/store/redis"
)

func TestSessionChannel(t *testing.T) {
	t.Parallel()

	t.Run("happy path", func(t *testing.T) {
		t.Parallel()

		got := redisstore.SessionChannel("slack:C0123:U0456")
		assert.Equal(t, "session:slack:C0123:U0456", got)
	})

	t.Run("empty key", func(t *testing.T) {
		t.Parallel()

		got := redisstore.SessionChannel("")
		assert.Equal(t, "session:", got)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Parallel()

		got := redisstore.SessionChannel("cli")
		assert.True(t, strings.HasPrefix(got, "session:"), "expected prefix 'session:', got %q", got)
	})

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()

		a := redisstore.SessionChannel("cli")
		b := redisstore.SessionChannel("cli")
		assert.Equal(t, a, b)
	})

	t.Run("different keys produce different channels", func(t *testing.T) {
		t.Parallel()

		a := redisstore.SessionChannel("cli")
		b := redisstore.SessionChannel("web")
		assert.NotEqual(t, a, b)
	})
}
