package recovery_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kitebot/kite/internal/recovery"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want recovery.Category
	}{
		{"rate limit text", errors.New("429: rate limit exceeded"), recovery.CategoryRateLimit},
		{"rate limit wins over auth words", errors.New("rate limit hit for this api key"), recovery.CategoryRateLimit},
		{"auth", errors.New("invalid API key provided"), recovery.CategoryAuth},
		{"unauthorized", errors.New("401 Unauthorized"), recovery.CategoryAuth},
		{"timeout", errors.New("request timed out"), recovery.CategoryTimeout},
		{"context overflow", errors.New("prompt is too long: 210000 tokens"), recovery.CategoryContextOverflow},
		{"network", errors.New("connection refused"), recovery.CategoryNetwork},
		{"validation", errors.New("validation failed on field model"), recovery.CategoryValidation},
		{"unknown", errors.New("something odd happened"), recovery.CategoryUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, recovery.Classify(tc.err))
			// Deterministic: same text, same category.
			assert.Equal(t, tc.want, recovery.Classify(tc.err))
		})
	}
}

func TestClassify_StructuredErrorIsAuthoritative(t *testing.T) {
	t.Parallel()

	// Message text says "timeout" but the structured category wins.
	err := &recovery.AgentError{
		Message:  "timeout while validating request",
		Category: recovery.CategoryValidation,
		Severity: recovery.SeverityLow,
	}
	assert.Equal(t, recovery.CategoryValidation, recovery.Classify(err))

	wrapped := fmt.Errorf("stream: %w", err)
	assert.Equal(t, recovery.CategoryValidation, recovery.Classify(wrapped))
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, recovery.Retryable(errors.New("connection reset by peer")))
	assert.True(t, recovery.Retryable(recovery.NewRateLimit("slow down")))
	assert.True(t, recovery.Retryable(recovery.NewContextOverflow("too big", 9000, 8192)))
	assert.False(t, recovery.Retryable(recovery.NewAuth("bad key")))
	assert.False(t, recovery.Retryable(errors.New("validation failed")))
	assert.False(t, recovery.Retryable(errors.New("mystery")))

	// Explicit flag beats the category default.
	flagged := &recovery.AgentError{
		Message:   "connection refused",
		Category:  recovery.CategoryNetwork,
		Retryable: false,
	}
	assert.False(t, recovery.Retryable(flagged))
}

func TestSeverityOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, recovery.SeverityCritical, recovery.SeverityOf(errors.New("401 unauthorized")))
	assert.Equal(t, recovery.SeverityHigh, recovery.SeverityOf(recovery.NewContextOverflow("x", 1, 1)))
	assert.Equal(t, recovery.SeverityMedium, recovery.SeverityOf(errors.New("connection refused")))
	assert.Equal(t, recovery.SeverityLow, recovery.SeverityOf(errors.New("invalid input")))
	assert.Equal(t, recovery.SeverityMedium, recovery.SeverityOf(errors.New("???")))
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "[rate_limit] 429 rate limit", recovery.Format(errors.New("429 rate limit")))
	assert.Equal(t, "[auth] bad key", recovery.Format(recovery.NewAuth("bad key")))
	assert.Empty(t, recovery.Format(nil))
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1*time.Second, recovery.Backoff(1))
	assert.Equal(t, 2*time.Second, recovery.Backoff(2))
	assert.Equal(t, 4*time.Second, recovery.Backoff(3))
	assert.Equal(t, 32*time.Second, recovery.Backoff(6))
	assert.Equal(t, 60*time.Second, recovery.Backoff(7))  // 64s capped
	assert.Equal(t, 60*time.Second, recovery.Backoff(50)) // stays capped
	assert.Equal(t, 1*time.Second, recovery.Backoff(0))   // clamped to first attempt
}

func TestBackoffWith(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 500*time.Millisecond, recovery.BackoffWith(1, 500*time.Millisecond, 10*time.Second))
	assert.Equal(t, 8*time.Second, recovery.BackoffWith(5, 500*time.Millisecond, 10*time.Second))
	assert.Equal(t, 10*time.Second, recovery.BackoffWith(6, 500*time.Millisecond, 10*time.Second))
}
