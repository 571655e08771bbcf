package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Provider ProviderConfig
	Agent    AgentConfig
	Slack    SlackConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// DatabaseConfig holds PostgreSQL connection settings. The transcript
// archive is optional: an empty Host disables it.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// Enabled reports whether a transcript archive was configured.
func (c *DatabaseConfig) Enabled() bool { return c.Host != "" }

// RedisConfig holds Redis connection settings for the event fanout.
// Optional: an empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// Enabled reports whether event fanout was configured.
func (c *RedisConfig) Enabled() bool { return c.Addr != "" }

// ProviderConfig holds model backend settings. Model uses the
// "provider/model" form; a bare model name means Anthropic.
type ProviderConfig struct {
	Model         string
	APIKey        string //nolint:gosec // G117: provider credential config
	BaseURL       string
	MaxTokens     int
	ContextTokens int
	MaxRetries    int
}

// AgentConfig holds runtime behavior settings.
type AgentConfig struct {
	SystemPrompt string
	SnapshotPath string
	Workspace    string
}

// SlackConfig holds Slack integration settings. Optional: an empty
// BotToken disables the slack_message tool.
type SlackConfig struct {
	BotToken string
}

// Load reads configuration from environment variables. Defaults are safe
// for local development; provider credentials must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("KITE_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("KITE_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("KITE_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxTokens, err := getEnvInt("KITE_MAX_TOKENS", 8192)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	contextTokens, err := getEnvInt("KITE_CONTEXT_TOKENS", 200000)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxRetries, err := getEnvInt("KITE_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("KITE_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("KITE_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("KITE_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Server: ServerConfig{
			Addr:         getEnv("KITE_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Database: DatabaseConfig{
			Host:     getEnv("KITE_DB_HOST", ""),
			Port:     dbPort,
			User:     getEnv("KITE_DB_USER", "kite"),
			Password: getEnv("KITE_DB_PASSWORD", ""),
			DBName:   getEnv("KITE_DB_NAME", "kite_dev"),
			SSLMode:  getEnv("KITE_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("KITE_REDIS_ADDR", ""),
			Password: getEnv("KITE_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Provider: ProviderConfig{
			Model:         getEnv("KITE_MODEL", "anthropic/claude-sonnet-4-20250514"),
			APIKey:        getEnv("KITE_API_KEY", ""),
			BaseURL:       getEnv("KITE_BASE_URL", ""),
			MaxTokens:     maxTokens,
			ContextTokens: contextTokens,
			MaxRetries:    maxRetries,
		},
		Agent: AgentConfig{
			SystemPrompt: getEnv("KITE_SYSTEM_PROMPT", ""),
			SnapshotPath: getEnv("KITE_SNAPSHOT_PATH", ""),
			Workspace:    getEnv("KITE_WORKSPACE", "."),
		},
		Slack: SlackConfig{
			BotToken: getEnv("KITE_SLACK_BOT_TOKEN", ""),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Provider.Model == "" {
		return fmt.Errorf("KITE_MODEL must not be empty")
	}
	if c.Provider.MaxTokens < 1 {
		return fmt.Errorf("KITE_MAX_TOKENS must be >= 1, got %d", c.Provider.MaxTokens)
	}
	if c.Provider.ContextTokens < 1 {
		return fmt.Errorf("KITE_CONTEXT_TOKENS must be >= 1, got %d", c.Provider.ContextTokens)
	}
	if c.Provider.MaxRetries < 0 {
		return fmt.Errorf("KITE_MAX_RETRIES must be >= 0, got %d", c.Provider.MaxRetries)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("KITE_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("KITE_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Database.Enabled() {
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("KITE_DB_PORT must be 1-65535, got %d", c.Database.Port)
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("KITE_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
		}
		if c.Database.SSLMode == "disable" {
			log.Warn().Msg("KITE_DB_SSLMODE=disable is insecure outside local development; set to 'require' or 'verify-full'")
		}
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
