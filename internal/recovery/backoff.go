package recovery

import "time"

const (
	// DefaultBackoffBase is the first retry delay.
	DefaultBackoffBase = 1 * time.Second

	// DefaultBackoffMax caps the delay growth.
	DefaultBackoffMax = 60 * time.Second
)

// Backoff returns the delay before retry number attempt (1-based):
// min(base * 2^(attempt-1), max). No jitter, so retry schedules are
// reproducible.
func Backoff(attempt int) time.Duration {
	return BackoffWith(attempt, DefaultBackoffBase, DefaultBackoffMax)
}

// BackoffWith is Backoff with explicit base and cap.
func BackoffWith(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
