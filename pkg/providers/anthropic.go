package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider speaks the Anthropic-style wire format: POST
// {apiBase}/v1/messages, streaming content_block_delta events of type
// text_delta and input_json_delta. Selected whenever the model name contains
// "claude" (see router.go).
type AnthropicProvider struct {
	client  anthropic.Client
	apiBase string
}

// NewAnthropicProvider builds an adapter. apiKey must be non-empty; callers
// check for NoApiKey before construction (see router.go).
func NewAnthropicProvider(apiKey, apiBase string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(apiBase) != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), apiBase: apiBase}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, onChunk StreamCallback) (*LLMResponse, error) {
	params, err := buildAnthropicParams(messages, tools, model)
	if err != nil {
		return nil, NewProviderError(ApiRequestFailed, p.Name(), model, err)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	resp, err := p.consumeStream(stream, onChunk)
	if err != nil {
		return nil, p.wrapError(err, model)
	}
	return resp, nil
}

func buildAnthropicParams(messages []Message, tools []ToolDefinition, model string) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	var anthropicMessages []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case "user":
			if msg.ToolCallID != "" {
				anthropicMessages = append(anthropicMessages,
					anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))
			} else {
				anthropicMessages = append(anthropicMessages,
					anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				var blocks []anthropic.ContentBlockParamUnion
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					name := tc.ToolName()
					if name == "" {
						continue
					}
					var args map[string]interface{}
					if err := json.Unmarshal([]byte(tc.ArgumentsJSON()), &args); err != nil {
						args = map[string]interface{}{}
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, name))
				}
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(blocks...))
			} else {
				anthropicMessages = append(anthropicMessages,
					anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case "tool":
			anthropicMessages = append(anthropicMessages,
				anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  anthropicMessages,
		MaxTokens: 4096,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(tools) > 0 {
		params.Tools = translateToolsForAnthropic(tools)
	}
	return params, nil
}

func translateToolsForAnthropic(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := anthropic.ToolParam{
			Name: t.Function.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Function.Parameters["properties"],
			},
		}
		if t.Function.Description != "" {
			tool.Description = anthropic.String(t.Function.Description)
		}
		if req, ok := t.Function.Parameters["required"].([]interface{}); ok {
			required := make([]string, 0, len(req))
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
			tool.InputSchema.Required = required
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return result
}

// anthropicStream is the minimal surface of ssestream.Stream this adapter
// consumes, narrowed so tests can substitute a fake.
type anthropicStream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}

func (p *AnthropicProvider) consumeStream(stream anthropicStream, onChunk StreamCallback) (*LLMResponse, error) {
	var content strings.Builder
	var toolCalls []ToolCall
	var currentToolCall *ToolCall
	var currentInput strings.Builder
	var usage *UsageInfo
	finishReason := "stop"

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			u := event.AsMessageStart().Message.Usage
			usage = &UsageInfo{PromptTokens: int(u.InputTokens)}

		case "message_delta":
			out := int(event.AsMessageDelta().Usage.OutputTokens)
			if usage == nil {
				usage = &UsageInfo{}
			}
			usage.CompletionTokens = out
			usage.TotalTokens = usage.PromptTokens + out

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				currentToolCall = &ToolCall{ID: tu.ID, Name: tu.Name}
				currentInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					content.WriteString(delta.Text)
					if onChunk != nil {
						onChunk(delta.Text)
					}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if currentToolCall != nil {
				var args map[string]interface{}
				raw := currentInput.String()
				if raw == "" {
					raw = "{}"
				}
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					args = map[string]interface{}{}
				}
				currentToolCall.Arguments = args
				toolCalls = append(toolCalls, *currentToolCall)
				currentToolCall = nil
				finishReason = "tool_calls"
			}

		case "message_stop":
			return &LLMResponse{Content: content.String(), ToolCalls: toolCalls, FinishReason: finishReason, Usage: usage}, nil

		case "error":
			return nil, errors.New("anthropic stream error")
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &LLMResponse{Content: content.String(), ToolCalls: toolCalls, FinishReason: finishReason, Usage: usage}, nil
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsProviderError(err); ok {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		kind := ClassifyAPIError(apiErr.StatusCode, apiErr.Error())
		return &ProviderError{
			Kind:     kind,
			Provider: p.Name(),
			Model:    model,
			Status:   apiErr.StatusCode,
			Message:  apiErr.Error(),
			Cause:    err,
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "EOF") {
		return &ProviderError{Kind: Network, Provider: p.Name(), Model: model, Cause: err}
	}

	return NewProviderError(ApiRequestFailed, p.Name(), model, err)
}
