package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json is used for all JSON handling inside package llm.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LLMUsage holds provider-neutral token accounting.
type LLMUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LogUsage logs token usage for one completion.
func LogUsage(ctx context.Context, provider, model string, usage *LLMUsage) {
	if usage == nil {
		return
	}
	slog.DebugContext(ctx, "Completion usage",
		"provider", provider,
		"model", model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
	)
}

// CompletionRequest is everything the external client needs for one completion.
type CompletionRequest struct {
	Model    string        `json:"model"`
	Messages []WireMessage `json:"messages"`
	Tools    []ToolSchema  `json:"tools,omitempty"` // nil when the caller has no tools
}

// Choice is one completion alternative.
type Choice struct {
	FinishReason string            `json:"finish_reason"`
	Message      CompletionMessage `json:"message"`
}

// CompletionResponse is the external client's answer.
type CompletionResponse struct {
	Choices []Choice  `json:"choices"`
	Usage   *LLMUsage `json:"usage,omitempty"`
}

// LLMClient is the external completion service.
type LLMClient interface {
	// Complete sends one request and returns the backend's choices.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsTransientError reports whether err is worth retrying (503, rate limit, ...).
	IsTransientError(err error) bool
}

// FallbackClient tries several clients in order, retrying transient failures.
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "Previous provider failed, trying fallback", "provider", i+1)
		}

		// at least one attempt per client
		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.InfoContext(ctx, "Retrying provider", "provider", i+1, "attempt", retry, "max", maxRetries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			resp, err := client.Complete(ctx, req)
			if err == nil {
				return resp, nil
			}
			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.WarnContext(ctx, "Provider failed with transient error", "provider", i+1, "error", err)
				continue
			}

			slog.ErrorContext(ctx, "Provider failed", "provider", i+1, "error", err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed: %w", lastErr)
}

// IsTransientError is always false: a FallbackClient error means every child gave up.
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}

// TimeoutClient bounds every call to the wrapped client. Timeouts belong here,
// around the external dependency, rather than around the engine.
type TimeoutClient struct {
	Client  LLMClient
	Timeout time.Duration
}

func (t *TimeoutClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	return t.Client.Complete(ctx, req)
}

func (t *TimeoutClient) IsTransientError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || t.Client.IsTransientError(err)
}
