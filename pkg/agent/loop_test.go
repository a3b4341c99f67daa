package agent

import (
	"context"
	"testing"

	"github.com/satibot/satibot/pkg/providers"
	"github.com/satibot/satibot/pkg/tools"
)

// scriptedProvider returns one canned response per call, in order, looping
// the last entry if Run calls it more times than scripted (used by the
// iteration-cap scenario, which calls it 10 times).
type scriptedProvider struct {
	responses []*providers.LLMResponse
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) ChatStream(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, model string, onChunk providers.StreamCallback) (*providers.LLMResponse, error) {
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return p.responses[i], nil
}

type erroringProvider struct {
	err error
}

func (p *erroringProvider) Name() string { return "erroring" }

func (p *erroringProvider) ChatStream(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition, model string, onChunk providers.StreamCallback) (*providers.LLMResponse, error) {
	return nil, p.err
}

// stubTool always returns a fixed result string, recording how many times
// it was invoked.
type stubTool struct {
	name   string
	result string
	calls  int
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub" }
func (t *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (t *stubTool) Execute(ctx context.Context, tc *tools.ToolContext, argsJSON string) (string, error) {
	t.calls++
	return t.result, nil
}

func newTestAgent(provider providers.LLMProvider) *Agent {
	return &Agent{
		model:    "test-model",
		registry: tools.NewRegistry(),
		provider: provider,
		shutdown: NewShutdownFlag(),
	}
}

// TestZeroToolTurn checks a plain text reply completes in one iteration
// with a three-message context (system, user, assistant).
func TestZeroToolTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{{Content: "hi"}}}
	a := newTestAgent(provider)

	if err := a.Run(context.Background(), "hello", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(a.context) != 3 {
		t.Fatalf("context has %d messages, want 3: %+v", len(a.context), a.context)
	}
	if a.context[0].Role != "system" {
		t.Errorf("context[0].Role = %q, want system", a.context[0].Role)
	}
	if a.context[1].Role != "user" || a.context[1].Content != "hello" {
		t.Errorf("context[1] = %+v, want user:hello", a.context[1])
	}
	if a.context[2].Role != "assistant" || a.context[2].Content != "hi" {
		t.Errorf("context[2] = %+v, want assistant:hi", a.context[2])
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1 iteration", provider.calls)
	}
}

// TestOneToolTurn checks a tool-call response inserts a tool-result message
// between the two assistant messages and takes exactly two iterations.
func TestOneToolTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{ToolCalls: []providers.ToolCall{{ID: "c1", Name: "vector_search", Arguments: map[string]interface{}{"query": "zig"}}}},
		{Content: "Found 0 results"},
	}}
	a := newTestAgent(provider)
	stub := &stubTool{name: "vector_search", result: "Found 0 results"}
	a.registry.Register(stub)
	a.toolCtx = &tools.ToolContext{}

	if err := a.Run(context.Background(), "do you remember zig?", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(a.context) != 5 {
		t.Fatalf("context has %d messages, want 5: %+v", len(a.context), a.context)
	}
	if a.context[2].Role != "assistant" || len(a.context[2].ToolCalls) != 1 {
		t.Errorf("context[2] should be the tool-call assistant message, got %+v", a.context[2])
	}
	if a.context[3].Role != "tool" || a.context[3].ToolCallID != "c1" {
		t.Errorf("context[3] should be the tool result for c1, got %+v", a.context[3])
	}
	if a.context[4].Role != "assistant" || a.context[4].Content != "Found 0 results" {
		t.Errorf("context[4] should be the final assistant text, got %+v", a.context[4])
	}
	if provider.calls != 2 {
		t.Errorf("provider called %d times, want 2 iterations", provider.calls)
	}
	if stub.calls != 1 {
		t.Errorf("tool called %d times, want 1", stub.calls)
	}
}

// TestIterationCapStopsAtTen checks a provider that always returns the same
// tool call still terminates after exactly 10 iterations, with no panic and
// no error.
func TestIterationCapStopsAtTen(t *testing.T) {
	looping := &providers.LLMResponse{ToolCalls: []providers.ToolCall{{ID: "c", Name: "loop_tool"}}}
	provider := &scriptedProvider{responses: []*providers.LLMResponse{looping}}
	a := newTestAgent(provider)
	a.registry.Register(&stubTool{name: "loop_tool", result: "again"})
	a.toolCtx = &tools.ToolContext{}

	if err := a.Run(context.Background(), "keep going", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(a.context) != 22 {
		t.Fatalf("context has %d messages, want 22 (1 system + 1 user + 10*2)", len(a.context))
	}
	if provider.calls != MaxIterations {
		t.Errorf("provider called %d times, want %d", provider.calls, MaxIterations)
	}
}

// TestUnknownToolNameDoesNotAbortRun checks the tie-break policy: a tool
// call naming an unregistered tool yields an error tool-result message
// instead of failing the run.
func TestUnknownToolNameDoesNotAbortRun(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{ToolCalls: []providers.ToolCall{{ID: "c1", Name: "does_not_exist"}}},
		{Content: "done"},
	}}
	a := newTestAgent(provider)
	a.toolCtx = &tools.ToolContext{}

	if err := a.Run(context.Background(), "hi", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.context[3].Content != "Error: tool not found" {
		t.Errorf("tool-result content = %q, want the not-found message", a.context[3].Content)
	}
}

// TestNonRetryableProviderErrorPropagatesUnchanged checks an error from the
// provider returns from Run unchanged.
func TestNonRetryableProviderErrorPropagatesUnchanged(t *testing.T) {
	wantErr := &providers.ProviderError{Kind: providers.RateLimitExceeded, Provider: "x", Model: "m"}
	a := newTestAgent(&erroringProvider{err: wantErr})

	err := a.Run(context.Background(), "hello", nil)
	if err != wantErr {
		t.Errorf("Run returned %v, want the exact provider error", err)
	}
}

// TestInterruptedReturnsErrInterruptedBeforeCallingProvider checks that a
// shutdown flag observed at an iteration boundary short-circuits the run
// without ever calling the provider.
func TestInterruptedReturnsErrInterruptedBeforeCallingProvider(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{{Content: "should not be reached"}}}
	a := newTestAgent(provider)
	flag := a.shutdown.(*atomicShutdownFlag)
	flag.Set()

	err := a.Run(context.Background(), "hello", nil)
	if err != ErrInterrupted {
		t.Errorf("Run returned %v, want ErrInterrupted", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times, want 0", provider.calls)
	}
}

// TestFilterOutboundDropsEmptyAssistantMessages checks an assistant message
// with neither content nor tool calls is dropped before being sent to a
// provider.
func TestFilterOutboundDropsEmptyAssistantMessages(t *testing.T) {
	in := []providers.Message{
		{Role: "system", Content: "s"},
		{Role: "user", Content: "u"},
		{Role: "assistant", Content: "", ToolCalls: nil},
		{Role: "assistant", Content: "a"},
	}
	out := filterOutbound(in)
	if len(out) != 3 {
		t.Fatalf("filterOutbound returned %d messages, want 3: %+v", len(out), out)
	}
	for _, m := range out {
		if m.Role == "assistant" && m.Content == "" && len(m.ToolCalls) == 0 {
			t.Errorf("empty assistant message survived filtering: %+v", m)
		}
	}
}

// TestCapHistoryKeepsLeadingSystemMessage checks that maxChatHistory
// truncation never drops the loaded session's system prompt, only the
// oldest non-system turns.
func TestCapHistoryKeepsLeadingSystemMessage(t *testing.T) {
	in := []providers.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "1"},
		{Role: "assistant", Content: "2"},
		{Role: "user", Content: "3"},
		{Role: "assistant", Content: "4"},
	}
	out := capHistory(in, 2)
	if len(out) != 3 {
		t.Fatalf("capHistory returned %d messages, want 3 (system + last 2): %+v", len(out), out)
	}
	if out[0].Role != "system" {
		t.Errorf("capHistory dropped the leading system message: %+v", out)
	}
	if out[1].Content != "3" || out[2].Content != "4" {
		t.Errorf("capHistory kept the wrong tail: %+v", out)
	}
}

func TestCapHistoryUnboundedWhenZero(t *testing.T) {
	in := []providers.Message{{Role: "user", Content: "1"}, {Role: "user", Content: "2"}}
	out := capHistory(in, 0)
	if len(out) != 2 {
		t.Errorf("capHistory with max=0 should be unbounded, got %d", len(out))
	}
}
