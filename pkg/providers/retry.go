package providers

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/satibot/satibot/pkg/logger"
)

// MaxRetries is the maximum number of retry attempts for a retryable error.
const MaxRetries = 3

// ShutdownFlag is polled between retry sleeps so a pending shutdown can
// short-circuit the remaining backoff instead of sleeping it out fully.
type ShutdownFlag interface {
	IsSet() bool
}

// RetryingProvider wraps an LLMProvider with a classified retry policy:
// ServiceUnavailable, ApiRequestFailed, and Network are retried with capped
// exponential backoff (2s, 4s, 8s); RateLimitExceeded, ModelNotSupported,
// and NoApiKey surface immediately with no retry.
type RetryingProvider struct {
	inner    LLMProvider
	shutdown ShutdownFlag
}

// NewRetryingProvider wraps inner with the retry engine. shutdown may be nil,
// in which case backoff sleeps always run to completion.
func NewRetryingProvider(inner LLMProvider, shutdown ShutdownFlag) *RetryingProvider {
	return &RetryingProvider{inner: inner, shutdown: shutdown}
}

func (r *RetryingProvider) Name() string {
	return r.inner.Name()
}

func (r *RetryingProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, onChunk StreamCallback) (*LLMResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		resp, err := r.inner.ChatStream(ctx, messages, tools, model, onChunk)
		if err == nil {
			return resp, nil
		}

		pe, ok := AsProviderError(err)
		if !ok {
			// Adapters are expected to always return a *ProviderError; an
			// unclassified error is treated as non-retryable so we never
			// loop on something we don't understand.
			return nil, err
		}
		if !pe.Kind.IsRetryable() {
			return nil, pe
		}

		lastErr = pe
		if attempt == MaxRetries {
			break
		}

		backoff := time.Duration(math.Pow(2, float64(attempt+1))) * time.Second
		logger.WarnCF("retry", fmt.Sprintf("provider call failed (%s), retrying in %s", pe.Kind, backoff), map[string]interface{}{
			"provider": r.inner.Name(),
			"model":    model,
			"attempt":  attempt + 1,
		})

		if r.shutdown != nil && r.shutdown.IsSet() {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, &ProviderError{
		Kind:     NetworkRetryFailed,
		Provider: r.inner.Name(),
		Model:    model,
		Cause:    lastErr,
		Message:  "retries exhausted",
	}
}
