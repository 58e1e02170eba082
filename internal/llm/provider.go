package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Provider is the interface all LLM backends must implement.
type Provider interface {
	// Chat sends a chat completion request and returns the full response.
	Chat(ctx context.Context, req *ChatRequest) (*LLMResponse, error)

	// Name returns the provider name (e.g. "openai", "anthropic").
	Name() string

	// DefaultModel returns the default model for this provider.
	DefaultModel() string
}

// LLMError wraps an error with a classification for fallback logic.
type LLMError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	Err        error
}

func (e *LLMError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// classify builds an LLMError from an HTTP status when one is known and
// from the error text otherwise.
func classify(err error, status int) *LLMError {
	llmErr := &LLMError{Err: err, StatusCode: status, Message: "llm request failed"}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		llmErr.Type = ErrorTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		llmErr.Type = ErrorAuth
	case status == http.StatusTooManyRequests:
		llmErr.Type = ErrorRateLimit
	case status >= 400 && status < 500:
		llmErr.Type = ErrorInvalidInput
	case status >= 500:
		llmErr.Type = ErrorServerError
	default:
		llmErr.Type = classifyText(strings.ToLower(err.Error()))
	}
	return llmErr
}

func classifyText(lower string) ErrorType {
	switch {
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "authentication"):
		return ErrorAuth
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit"):
		return ErrorRateLimit
	case strings.Contains(lower, "overloaded"):
		return ErrorServerError
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return ErrorTimeout
	case strings.Contains(lower, "connection") || strings.Contains(lower, "dns") || strings.Contains(lower, "refused"):
		return ErrorNetwork
	default:
		return ErrorUnknown
	}
}
