// Package budget decides whether a conversation still fits the model's
// context window and compresses the session log when it does not. Token
// counts are cheap heuristic estimates, not provider-exact tokenizer output.
package budget

import (
	"github.com/rs/zerolog/log"

	"github.com/kitebot/kite/internal/session"
)

const (
	// charsPerToken is the rough average for English prose across the
	// supported models. Deliberately conservative.
	charsPerToken = 4

	// perMessageOverhead accounts for role markers and message framing.
	perMessageOverhead = 4

	// DefaultThreshold is the used/total ratio above which compression kicks in.
	DefaultThreshold = 0.8

	// DefaultCompressFloor is the minimum message count before compression
	// is considered at all.
	DefaultCompressFloor = 25

	// DefaultKeepRecent is how many non-system messages survive compression.
	DefaultKeepRecent = 20
)

// Window is the computed context-window state for one provider call.
// It is derived on demand and never stored.
type Window struct {
	UsedTokens     int
	TotalTokens    int
	ShouldCompress bool
}

// Manager evaluates context pressure for a fixed model window size.
type Manager struct {
	totalTokens   int
	threshold     float64
	compressFloor int
	keepRecent    int
}

// Option adjusts a Manager.
type Option func(*Manager)

// WithThreshold overrides the compression trigger ratio.
func WithThreshold(t float64) Option {
	return func(m *Manager) { m.threshold = t }
}

// WithCompressFloor overrides the minimum message count for compression.
func WithCompressFloor(n int) Option {
	return func(m *Manager) { m.compressFloor = n }
}

// WithKeepRecent overrides how many non-system messages compression keeps.
func WithKeepRecent(n int) Option {
	return func(m *Manager) { m.keepRecent = n }
}

// NewManager creates a Manager for a model with the given context window
// size in tokens.
func NewManager(totalTokens int, opts ...Option) *Manager {
	m := &Manager{
		totalTokens:   totalTokens,
		threshold:     DefaultThreshold,
		compressFloor: DefaultCompressFloor,
		keepRecent:    DefaultKeepRecent,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TotalTokens returns the configured window size.
func (m *Manager) TotalTokens() int { return m.totalTokens }

// EstimateTokens estimates the token usage of a message list. Deterministic
// for the same input and monotonic in total text length.
func EstimateTokens(messages []session.Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)/charsPerToken + perMessageOverhead
		for _, tc := range msg.ToolCalls {
			total += len(tc.Name)/charsPerToken + perMessageOverhead
		}
	}
	return total
}

// Check computes the window state for an estimated usage.
func (m *Manager) Check(usedTokens int) Window {
	w := Window{
		UsedTokens:  usedTokens,
		TotalTokens: m.totalTokens,
	}
	if m.totalTokens > 0 {
		w.ShouldCompress = float64(usedTokens)/float64(m.totalTokens) >= m.threshold
	}
	return w
}

// Compress applies the pruning policy to a session: when the log exceeds
// the floor, keep all system messages plus the most recent messages. The
// message that triggered the current turn is always in the kept tail.
// Returns true if anything was pruned.
func (m *Manager) Compress(sess *session.Session) bool {
	before := sess.Len()
	if before <= m.compressFloor {
		return false
	}

	sess.TruncateMiddle(true, m.keepRecent)
	after := sess.Len()

	log.Info().
		Str("session_key", sess.Key()).
		Int("before", before).
		Int("after", after).
		Msg("budget: pruned conversation history")

	return after < before
}

// Exceeded reports whether an estimate still overflows the window outright.
// Used after compression to decide if the turn must surface a context
// overflow instead of calling the provider.
func (m *Manager) Exceeded(usedTokens int) bool {
	return m.totalTokens > 0 && usedTokens >= m.totalTokens
}
