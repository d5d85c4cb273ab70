package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/neboloop/architect/internal/agent/session"
)

var (
	// ErrMissingCredential means no API key could be resolved. It is raised
	// before any network call is attempted.
	ErrMissingCredential = errors.New("model provider credential is not configured")

	// ErrMissingModel means no model identifier was configured.
	ErrMissingModel = errors.New("model identifier is not configured")

	// ErrProvider wraps every failure reported by the model endpoint.
	ErrProvider = errors.New("model provider error")
)

// ToolDefinition describes a tool available to the AI. Parameters is the
// tool's JSON schema, forwarded verbatim.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest represents a request to the AI provider
type ChatRequest struct {
	Messages    []session.Message `json:"messages"`
	Tools       []ToolDefinition  `json:"tools,omitempty"`
	Model       string            `json:"model,omitempty"` // Model override
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

// Choice is one candidate completion
type Choice struct {
	Message      session.Message `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// Usage reports token accounting when the endpoint provides it
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// ChatResponse is a non-streaming completion
type ChatResponse struct {
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// First returns the first choice's message, or false when the endpoint
// returned no choices.
func (r *ChatResponse) First() (session.Message, bool) {
	if r == nil || len(r.Choices) == 0 {
		return session.Message{}, false
	}
	return r.Choices[0].Message, true
}

// Provider is an OpenAI-compatible chat completion endpoint
type Provider interface {
	// ID returns the provider identifier (e.g., "deepseek")
	ID() string

	// Complete sends one request and waits for the whole response
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ProviderError represents an error from a provider
type ProviderError struct {
	StatusCode int    `json:"status_code,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// Unwrap lets errors.Is(err, ErrProvider) match every ProviderError
func (e *ProviderError) Unwrap() error {
	return ErrProvider
}

// IsRateLimitOrAuth checks if an error is due to rate limiting or auth issues
func IsRateLimitOrAuth(err error) bool {
	reason := ClassifyErrorReason(err)
	return reason == "rate_limit" || reason == "auth"
}

// ClassifyErrorReason determines the category of a provider failure.
// Returns: "billing", "rate_limit", "auth", "timeout", or "other"
func ClassifyErrorReason(err error) string {
	if err == nil {
		return "other"
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.StatusCode {
		case 429:
			return "rate_limit"
		case 401, 403:
			return "auth"
		case 402:
			return "billing"
		}
		switch pe.Code {
		case "rate_limit_exceeded":
			return "rate_limit"
		case "authentication_error", "invalid_api_key", "unauthorized":
			return "auth"
		case "insufficient_quota", "billing_error", "payment_required":
			return "billing"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	patterns := []struct {
		reason   string
		keywords []string
	}{
		{"billing", []string{"billing", "quota", "payment", "insufficient balance", "spending limit"}},
		{"rate_limit", []string{"rate limit", "rate_limit", "too many requests", "throttl"}},
		{"auth", []string{"authentication", "unauthorized", "api key", "forbidden", "invalid credentials"}},
		{"timeout", []string{"timeout", "timed out", "deadline exceeded", "context canceled"}},
	}
	for _, p := range patterns {
		for _, kw := range p.keywords {
			if strings.Contains(msg, kw) {
				return p.reason
			}
		}
	}
	return "other"
}
