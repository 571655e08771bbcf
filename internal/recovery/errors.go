// Package recovery classifies failures from providers and transports and
// decides whether, and how fast, a turn may retry. Classification prefers
// structured errors; message-text matching is the fallback.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Category buckets a failure by cause.
type Category string

const (
	CategoryNetwork         Category = "network"
	CategoryAuth            Category = "auth"
	CategoryRateLimit       Category = "rate_limit"
	CategoryContextOverflow Category = "context_overflow"
	CategoryTimeout         Category = "timeout"
	CategoryValidation      Category = "validation"
	CategoryProvider        Category = "provider"
	CategoryUnknown         Category = "unknown"
)

// Severity grades how bad a failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AgentError is a structured failure carrying exactly one category, one
// severity, and a retryable flag. When present in an error chain it is
// authoritative for classification.
type AgentError struct {
	Message   string
	Category  Category
	Severity  Severity
	Retryable bool
	Details   map[string]any
	Err       error
}

func (e *AgentError) Error() string {
	return e.Message
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewContextOverflow reports a conversation that no longer fits the model
// window even after compression. Retryable: the caller may clear history or
// shrink max_tokens and try again.
func NewContextOverflow(message string, usedTokens, totalTokens int) *AgentError {
	return &AgentError{
		Message:   message,
		Category:  CategoryContextOverflow,
		Severity:  SeverityHigh,
		Retryable: true,
		Details: map[string]any{
			"used_tokens": usedTokens,
			"max_tokens":  totalTokens,
		},
	}
}

// NewRateLimit reports a provider rate limit.
func NewRateLimit(message string) *AgentError {
	return &AgentError{
		Message:   message,
		Category:  CategoryRateLimit,
		Severity:  SeverityMedium,
		Retryable: true,
	}
}

// NewAuth reports an authentication failure. Never retryable.
func NewAuth(message string) *AgentError {
	return &AgentError{
		Message:  message,
		Category: CategoryAuth,
		Severity: SeverityCritical,
	}
}

// NewNetwork reports a connection-level failure.
func NewNetwork(message string) *AgentError {
	return &AgentError{
		Message:   message,
		Category:  CategoryNetwork,
		Severity:  SeverityMedium,
		Retryable: true,
	}
}

// NewTimeout reports an operation timeout.
func NewTimeout(message string) *AgentError {
	return &AgentError{
		Message:   message,
		Category:  CategoryTimeout,
		Severity:  SeverityMedium,
		Retryable: true,
	}
}

// NewProvider reports a provider-side failure without a finer category.
func NewProvider(message string) *AgentError {
	return &AgentError{
		Message:  message,
		Category: CategoryProvider,
		Severity: SeverityMedium,
	}
}

// keywordGroups are checked in order against the lowercased error text;
// first match wins.
var keywordGroups = []struct {
	category Category
	words    []string
}{
	{CategoryRateLimit, []string{"rate limit", "rate_limit", "ratelimit", "429", "too many requests"}},
	{CategoryAuth, []string{"auth", "unauthorized", "forbidden", "api key", "401", "403"}},
	{CategoryTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{CategoryContextOverflow, []string{"context", "token", "too long"}},
	{CategoryNetwork, []string{"network", "connection", "unreachable", "broken pipe", "reset by peer"}},
	{CategoryValidation, []string{"validation", "invalid"}},
}

// Classify maps an error onto a Category. A structured AgentError in the
// chain is authoritative; otherwise the message text is matched against
// ordered keyword groups.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	text := strings.ToLower(err.Error())
	for _, group := range keywordGroups {
		for _, word := range group.words {
			if strings.Contains(text, word) {
				return group.category
			}
		}
	}
	return CategoryUnknown
}

// retryableCategories is the default set when no explicit flag is carried.
var retryableCategories = map[Category]bool{
	CategoryNetwork:         true,
	CategoryRateLimit:       true,
	CategoryTimeout:         true,
	CategoryContextOverflow: true,
}

// Retryable reports whether the failure is worth a bounded retry. An
// explicit flag on a structured error wins over the category default.
func Retryable(err error) bool {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Retryable
	}
	return retryableCategories[Classify(err)]
}

var severityByCategory = map[Category]Severity{
	CategoryAuth:            SeverityCritical,
	CategoryContextOverflow: SeverityHigh,
	CategoryRateLimit:       SeverityMedium,
	CategoryTimeout:         SeverityMedium,
	CategoryNetwork:         SeverityMedium,
	CategoryValidation:      SeverityLow,
	CategoryProvider:        SeverityMedium,
	CategoryUnknown:         SeverityMedium,
}

// SeverityOf grades an error. Structured errors carry their own grade.
func SeverityOf(err error) Severity {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Severity
	}
	return severityByCategory[Classify(err)]
}

// Format renders an error for user display as "[category] message".
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("[%s] %s", Classify(err), err.Error())
}
