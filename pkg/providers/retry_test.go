package providers

import (
	"context"
	"testing"
)

type scriptedProvider struct {
	responses []*LLMResponse
	errs      []error
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, onChunk StreamCallback) (*LLMResponse, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return p.responses[i], nil
}

// TestRateLimitNeverRetries checks a RateLimitExceeded on the first call
// surfaces immediately, with exactly one underlying call made.
func TestRateLimitNeverRetries(t *testing.T) {
	inner := &scriptedProvider{
		errs: []error{&ProviderError{Kind: RateLimitExceeded, Provider: "scripted", Model: "m"}},
	}
	retrying := NewRetryingProvider(inner, nil)

	_, err := retrying.ChatStream(context.Background(), nil, nil, "m", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	pe, ok := AsProviderError(err)
	if !ok || pe.Kind != RateLimitExceeded {
		t.Errorf("got %v, want a RateLimitExceeded ProviderError", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want exactly 1 (no retry)", inner.calls)
	}
}

// TestTransientThenRecover checks two Network failures followed by a success
// recover transparently. This exercises the real 2s+4s backoff timers, so it
// runs for several seconds.
func TestTransientThenRecover(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises real 2s+4s backoff timers")
	}

	inner := &scriptedProvider{
		errs: []error{
			&ProviderError{Kind: Network, Provider: "scripted", Model: "m"},
			&ProviderError{Kind: Network, Provider: "scripted", Model: "m"},
			nil,
		},
		responses: []*LLMResponse{nil, nil, {Content: "ok"}},
	}
	retrying := NewRetryingProvider(inner, nil)

	resp, err := retrying.ChatStream(context.Background(), nil, nil, "m", nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("got content %q, want %q", resp.Content, "ok")
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestRetriesExhaustedReturnsNetworkRetryFailed(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises real backoff timers")
	}

	inner := &scriptedProvider{
		errs: []error{
			&ProviderError{Kind: ServiceUnavailable, Provider: "scripted", Model: "m"},
			&ProviderError{Kind: ServiceUnavailable, Provider: "scripted", Model: "m"},
			&ProviderError{Kind: ServiceUnavailable, Provider: "scripted", Model: "m"},
			&ProviderError{Kind: ServiceUnavailable, Provider: "scripted", Model: "m"},
		},
	}
	retrying := NewRetryingProvider(inner, nil)

	_, err := retrying.ChatStream(context.Background(), nil, nil, "m", nil)
	pe, ok := AsProviderError(err)
	if !ok || pe.Kind != NetworkRetryFailed {
		t.Errorf("got %v, want NetworkRetryFailed", err)
	}
	if inner.calls != MaxRetries+1 {
		t.Errorf("inner called %d times, want %d", inner.calls, MaxRetries+1)
	}
}
