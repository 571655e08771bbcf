package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helper function tests
// ---------------------------------------------------------------------------

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string // nil = don't set; pointer to distinguish "" from unset
		fallback string
		want     string
	}{
		{name: "returns fallback when unset", key: "KITE_TEST_GETENV_UNSET", setVal: nil, fallback: "default", want: "default"},
		{name: "returns env value when set", key: "KITE_TEST_GETENV_SET", setVal: strPtr("custom"), fallback: "default", want: "custom"},
		{name: "returns fallback when empty string", key: "KITE_TEST_GETENV_EMPTY", setVal: strPtr(""), fallback: "default", want: "default"},
		{name: "preserves whitespace", key: "KITE_TEST_GETENV_WS", setVal: strPtr("  spaced  "), fallback: "x", want: "  spaced  "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got := getEnv(tc.key, tc.fallback)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback int
		want     int
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "KITE_TEST_INT_UNSET", setVal: nil, fallback: 42, want: 42},
		{name: "parses valid int", key: "KITE_TEST_INT_VALID", setVal: strPtr("8080"), fallback: 0, want: 8080},
		{name: "parses negative int", key: "KITE_TEST_INT_NEG", setVal: strPtr("-1"), fallback: 0, want: -1},
		{name: "parses zero", key: "KITE_TEST_INT_ZERO", setVal: strPtr("0"), fallback: 99, want: 0},
		{name: "returns fallback for empty string", key: "KITE_TEST_INT_EMPTY", setVal: strPtr(""), fallback: 25, want: 25},
		{name: "errors on non-numeric", key: "KITE_TEST_INT_NAN", setVal: strPtr("abc"), fallback: 0, wantErr: true},
		{name: "errors on float", key: "KITE_TEST_INT_FLOAT", setVal: strPtr("3.14"), fallback: 0, wantErr: true},
		{name: "errors on hex", key: "KITE_TEST_INT_HEX", setVal: strPtr("0xFF"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvInt(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback time.Duration
		want     time.Duration
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "KITE_TEST_DUR_UNSET", setVal: nil, fallback: 5 * time.Second, want: 5 * time.Second},
		{name: "parses seconds", key: "KITE_TEST_DUR_SEC", setVal: strPtr("30s"), fallback: 0, want: 30 * time.Second},
		{name: "parses minutes", key: "KITE_TEST_DUR_MIN", setVal: strPtr("15m"), fallback: 0, want: 15 * time.Minute},
		{name: "parses composite", key: "KITE_TEST_DUR_COMP", setVal: strPtr("1h30m"), fallback: 0, want: 90 * time.Minute},
		{name: "parses zero", key: "KITE_TEST_DUR_ZERO", setVal: strPtr("0s"), fallback: 5 * time.Second, want: 0},
		{name: "errors on invalid", key: "KITE_TEST_DUR_INV", setVal: strPtr("notaduration"), fallback: 0, wantErr: true},
		{name: "errors on bare number", key: "KITE_TEST_DUR_BARE", setVal: strPtr("30"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvDuration(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

// ---------------------------------------------------------------------------
// Load() error cases
// ---------------------------------------------------------------------------

func TestLoad_InvalidEnvVars(t *testing.T) {
	tests := []struct {
		name   string
		envs   map[string]string
		errMsg string
	}{
		// Parse errors.
		{name: "MAX_TOKENS not a number", envs: map[string]string{"KITE_MAX_TOKENS": "abc"}, errMsg: "KITE_MAX_TOKENS"},
		{name: "CONTEXT_TOKENS float", envs: map[string]string{"KITE_CONTEXT_TOKENS": "3.14"}, errMsg: "KITE_CONTEXT_TOKENS"},
		{name: "MAX_RETRIES not a number", envs: map[string]string{"KITE_MAX_RETRIES": "many"}, errMsg: "KITE_MAX_RETRIES"},
		{name: "REDIS_DB not a number", envs: map[string]string{"KITE_REDIS_DB": "abc"}, errMsg: "KITE_REDIS_DB"},

		// Validation errors.
		{name: "MAX_TOKENS zero", envs: map[string]string{"KITE_MAX_TOKENS": "0"}, errMsg: "KITE_MAX_TOKENS"},
		{name: "CONTEXT_TOKENS negative", envs: map[string]string{"KITE_CONTEXT_TOKENS": "-1"}, errMsg: "KITE_CONTEXT_TOKENS"},
		{name: "MAX_RETRIES negative", envs: map[string]string{"KITE_MAX_RETRIES": "-1"}, errMsg: "KITE_MAX_RETRIES"},
		{name: "READ_TIMEOUT invalid", envs: map[string]string{"KITE_SERVER_READ_TIMEOUT": "notduration"}, errMsg: "KITE_SERVER_READ_TIMEOUT"},
		{name: "READ_TIMEOUT zero", envs: map[string]string{"KITE_SERVER_READ_TIMEOUT": "0s"}, errMsg: "KITE_SERVER_READ_TIMEOUT"},
		{name: "WRITE_TIMEOUT zero", envs: map[string]string{"KITE_SERVER_WRITE_TIMEOUT": "0s"}, errMsg: "KITE_SERVER_WRITE_TIMEOUT"},

		// DB bounds only apply when a host is configured.
		{name: "DB_PORT zero with host", envs: map[string]string{"KITE_DB_HOST": "db", "KITE_DB_PORT": "0"}, errMsg: "KITE_DB_PORT"},
		{name: "DB_PORT too high with host", envs: map[string]string{"KITE_DB_HOST": "db", "KITE_DB_PORT": "65536"}, errMsg: "KITE_DB_PORT"},
		{name: "DB_MAX_CONNS zero with host", envs: map[string]string{"KITE_DB_HOST": "db", "KITE_DB_MAX_CONNS": "0"}, errMsg: "KITE_DB_MAX_CONNS"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.envs {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestLoad_DBBoundsIgnoredWhenDisabled(t *testing.T) {
	// No KITE_DB_HOST: the archive is disabled, so port bounds don't apply.
	t.Setenv("KITE_DB_PORT", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Database.Enabled())
}

// ---------------------------------------------------------------------------
// Load() happy paths
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Server defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)

	// Provider defaults.
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.Provider.Model)
	assert.Empty(t, cfg.Provider.APIKey)
	assert.Empty(t, cfg.Provider.BaseURL)
	assert.Equal(t, 8192, cfg.Provider.MaxTokens)
	assert.Equal(t, 200000, cfg.Provider.ContextTokens)
	assert.Equal(t, 3, cfg.Provider.MaxRetries)

	// Optional integrations default to disabled.
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.Empty(t, cfg.Slack.BotToken)

	// Agent defaults.
	assert.Empty(t, cfg.Agent.SystemPrompt)
	assert.Empty(t, cfg.Agent.SnapshotPath)
	assert.Equal(t, ".", cfg.Agent.Workspace)
}

func TestLoad_AllCustomValues(t *testing.T) {
	envs := map[string]string{
		// Server
		"KITE_SERVER_ADDR":          ":9090",
		"KITE_SERVER_READ_TIMEOUT":  "5s",
		"KITE_SERVER_WRITE_TIMEOUT": "15s",
		"KITE_CORS_ORIGINS":         "https://a.example, https://b.example",
		// Database
		"KITE_DB_HOST":      "db.prod.internal",
		"KITE_DB_PORT":      "5433",
		"KITE_DB_USER":      "prod_user",
		"KITE_DB_PASSWORD":  "s3cret!",
		"KITE_DB_NAME":      "kite_prod",
		"KITE_DB_SSLMODE":   "require",
		"KITE_DB_MAX_CONNS": "50",
		// Redis
		"KITE_REDIS_ADDR":     "redis.prod:6380",
		"KITE_REDIS_PASSWORD": "redis-pass",
		"KITE_REDIS_DB":       "3",
		// Provider
		"KITE_MODEL":          "openai/gpt-4o",
		"KITE_API_KEY":        "sk-test",
		"KITE_BASE_URL":       "https://llm.internal/v1",
		"KITE_MAX_TOKENS":     "4096",
		"KITE_CONTEXT_TOKENS": "128000",
		"KITE_MAX_RETRIES":    "5",
		// Agent
		"KITE_SYSTEM_PROMPT": "you are terse",
		"KITE_SNAPSHOT_PATH": "/var/lib/kite/sessions.yaml",
		"KITE_WORKSPACE":     "/workspace",
		// Slack
		"KITE_SLACK_BOT_TOKEN": "xoxb-test",
	}

	for k, v := range envs {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, "db.prod.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "prod_user", cfg.Database.User)
	assert.Equal(t, "s3cret!", cfg.Database.Password)
	assert.Equal(t, "kite_prod", cfg.Database.DBName)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 50, cfg.Database.MaxConns)

	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "redis.prod:6380", cfg.Redis.Addr)
	assert.Equal(t, "redis-pass", cfg.Redis.Password)
	assert.Equal(t, 3, cfg.Redis.DB)

	assert.Equal(t, "openai/gpt-4o", cfg.Provider.Model)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, "https://llm.internal/v1", cfg.Provider.BaseURL)
	assert.Equal(t, 4096, cfg.Provider.MaxTokens)
	assert.Equal(t, 128000, cfg.Provider.ContextTokens)
	assert.Equal(t, 5, cfg.Provider.MaxRetries)

	assert.Equal(t, "you are terse", cfg.Agent.SystemPrompt)
	assert.Equal(t, "/var/lib/kite/sessions.yaml", cfg.Agent.SnapshotPath)
	assert.Equal(t, "/workspace", cfg.Agent.Workspace)

	assert.Equal(t, "xoxb-test", cfg.Slack.BotToken)
}

// ---------------------------------------------------------------------------
// DSN() output format
// ---------------------------------------------------------------------------

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "default dev values",
			cfg: DatabaseConfig{
				Host: "localhost", Port: 5432, User: "kite",
				Password: "", DBName: "kite_dev", SSLMode: "disable",
			},
			want: "host=localhost port=5432 user=kite password= dbname=kite_dev sslmode=disable",
		},
		{
			name: "production values",
			cfg: DatabaseConfig{
				Host: "db.prod", Port: 5433, User: "admin",
				Password: "p@ss!", DBName: "kite_prod", SSLMode: "require",
			},
			want: "host=db.prod port=5433 user=admin password=p@ss! dbname=kite_prod sslmode=require",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.cfg.DSN())
		})
	}
}

// ---------------------------------------------------------------------------
// validate() direct tests
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	t.Parallel()

	// validBase returns a Config that passes validation.
	validBase := func() *Config {
		return &Config{
			Server: ServerConfig{
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
			},
			Provider: ProviderConfig{
				Model:         "anthropic/claude-sonnet-4-20250514",
				MaxTokens:     8192,
				ContextTokens: 200000,
				MaxRetries:    3,
			},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validBase().validate())
	})

	t.Run("empty model fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Provider.Model = ""
		assert.ErrorContains(t, c.validate(), "KITE_MODEL")
	})

	t.Run("zero max tokens fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Provider.MaxTokens = 0
		assert.ErrorContains(t, c.validate(), "KITE_MAX_TOKENS")
	})

	t.Run("zero context tokens fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Provider.ContextTokens = 0
		assert.ErrorContains(t, c.validate(), "KITE_CONTEXT_TOKENS")
	})

	t.Run("zero retries passes", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Provider.MaxRetries = 0
		assert.NoError(t, c.validate())
	})

	t.Run("negative retries fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Provider.MaxRetries = -1
		assert.ErrorContains(t, c.validate(), "KITE_MAX_RETRIES")
	})

	t.Run("read timeout zero fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Server.ReadTimeout = 0
		assert.ErrorContains(t, c.validate(), "KITE_SERVER_READ_TIMEOUT")
	})

	t.Run("write timeout negative fails", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Server.WriteTimeout = -time.Second
		assert.ErrorContains(t, c.validate(), "KITE_SERVER_WRITE_TIMEOUT")
	})

	t.Run("db bounds enforced only when host set", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Database.Port = 0
		assert.NoError(t, c.validate())

		c.Database.Host = "db"
		assert.ErrorContains(t, c.validate(), "KITE_DB_PORT")
	})

	t.Run("db valid when host set with sane bounds", func(t *testing.T) {
		t.Parallel()
		c := validBase()
		c.Database = DatabaseConfig{Host: "db", Port: 5432, MaxConns: 25, SSLMode: "require"}
		assert.NoError(t, c.validate())
	})
}

// ---------------------------------------------------------------------------
// Test helper
// ---------------------------------------------------------------------------

func strPtr(s string) *string {
	return &s
}
