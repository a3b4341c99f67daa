// Package providers implements the provider-agnostic chat interface: a
// neutral message/tool model, one adapter per wire format, and the classified
// retry engine that sits in front of them.
package providers

import (
	"context"
	"encoding/json"
)

// Message is one turn of the conversation. Role is one of system, user,
// assistant, or tool. If Role is "tool", ToolCallID must be set. If Role is
// "assistant", at least one of Content or ToolCalls must be non-empty;
// messages violating that are dropped by the agent before being sent to a
// provider, never mutated in place here.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// FunctionCall is the OpenAI-compatible wire shape for a tool invocation:
// a name plus a JSON-encoded arguments string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a single model-requested tool invocation. ID echoes back on the
// corresponding tool-result message. Arguments holds the already-decoded
// argument map when an adapter produces one directly (Anthropic); Function
// holds the raw OpenAI-compatible shape when an adapter produces that
// instead. Exactly one of the two is populated per adapter, never both.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Function  *FunctionCall          `json:"function,omitempty"`
}

// ArgumentsJSON returns the tool call's arguments as a JSON string, resolving
// whichever of Arguments/Function the producing adapter populated.
func (tc ToolCall) ArgumentsJSON() string {
	if tc.Function != nil && tc.Function.Arguments != "" {
		return tc.Function.Arguments
	}
	if tc.Arguments != nil {
		b, err := json.Marshal(tc.Arguments)
		if err == nil {
			return string(b)
		}
	}
	return "{}"
}

// ToolName resolves the tool call's function name regardless of which shape
// the producing adapter used.
func (tc ToolCall) ToolName() string {
	if tc.Name != "" {
		return tc.Name
	}
	if tc.Function != nil {
		return tc.Function.Name
	}
	return ""
}

// FunctionDef describes a callable tool's name, description, and JSON-schema
// parameters, as carried over the OpenAI-compatible wire format.
type FunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolDefinition is a registry entry as presented to a provider: the
// envelope type plus the function schema. Names are unique within a registry.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// UsageInfo reports token accounting for one provider call. Streaming usage
// is best-effort; adapters populate whatever the wire format reports.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMResponse is the normalized result of one provider call. Exactly one of
// Content/ToolCalls is non-empty in the common case, though both may coexist
// when a model emits trailing prose alongside a tool call.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *UsageInfo
}

// StreamCallback receives each incremental text delta as it arrives. It may
// be invoked from the same call frame as ChatStream and need not be
// goroutine-safe.
type StreamCallback func(delta string)

// LLMProvider is the common interface every wire-format adapter implements.
type LLMProvider interface {
	// Name identifies the adapter for logging and routing.
	Name() string
	// ChatStream sends messages to the model, streaming text deltas to
	// onChunk as they arrive, and returns the normalized final response.
	ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, onChunk StreamCallback) (*LLMResponse, error)
}
