package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAICompatProvider speaks the OpenAI-compatible wire format: POST
// {apiBase}/chat/completions with tool_calls carried as an array of
// {id, type:"function", function:{name, arguments}}. Used for OpenAI itself
// as well as OpenRouter/Groq by overriding apiBase.
type OpenAICompatProvider struct {
	client openai.Client
	name   string
}

// NewOpenAICompatProvider builds an adapter against apiBase using apiKey.
// name identifies the upstream for logging (e.g. "openai", "openrouter", "groq").
func NewOpenAICompatProvider(name, apiKey, apiBase string) *OpenAICompatProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(apiBase) != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &OpenAICompatProvider{client: openai.NewClient(opts...), name: name}
}

func (p *OpenAICompatProvider) Name() string {
	return p.name
}

func (p *OpenAICompatProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, onChunk StreamCallback) (*LLMResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: convertMessagesToOpenAI(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if len(tools) > 0 {
		params.Tools = convertToolsToOpenAI(tools)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	resp, err := p.consumeStream(stream, onChunk)
	if err != nil {
		return nil, p.wrapError(err, model)
	}
	return resp, nil
}

func convertMessagesToOpenAI(messages []Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			result = append(result, openai.SystemMessage(msg.Content))
		case "user":
			result = append(result, openai.UserMessage(msg.Content))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: tc.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.ToolName(),
								Arguments: tc.ArgumentsJSON(),
							},
						},
					})
				}
				asst := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
				if msg.Content != "" {
					asst.Content.OfString = openai.String(msg.Content)
				}
				result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
			} else {
				result = append(result, openai.AssistantMessage(msg.Content))
			}
		case "tool":
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return result
}

func convertToolsToOpenAI(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: openai.String(t.Function.Description),
			Parameters:  t.Function.Parameters,
		}))
	}
	return result
}

// openaiStream is the minimal surface of the SDK's streaming response this
// adapter consumes, narrowed so tests can substitute a fake.
type openaiStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

type accumulatingToolCall struct {
	id   string
	name string
	args strings.Builder
}

func (p *OpenAICompatProvider) consumeStream(stream openaiStream, onChunk StreamCallback) (*LLMResponse, error) {
	defer stream.Close()

	var content strings.Builder
	calls := map[int64]*accumulatingToolCall{}
	var order []int64
	var usage *UsageInfo
	finishReason := "stop"

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = &UsageInfo{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			content.WriteString(delta.Content)
			if onChunk != nil {
				onChunk(delta.Content)
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			acc, ok := calls[idx]
			if !ok {
				acc = &accumulatingToolCall{}
				calls[idx] = acc
				order = append(order, idx)
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				acc.args.WriteString(tc.Function.Arguments)
			}
		}

		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	var toolCalls []ToolCall
	for _, idx := range order {
		acc := calls[idx]
		toolCalls = append(toolCalls, ToolCall{
			ID:   acc.id,
			Name: acc.name,
			Function: &FunctionCall{
				Name:      acc.name,
				Arguments: acc.args.String(),
			},
		})
	}
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
	}

	return &LLMResponse{Content: content.String(), ToolCalls: toolCalls, FinishReason: finishReason, Usage: usage}, nil
}

func (p *OpenAICompatProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsProviderError(err); ok {
		return err
	}

	var apiErr *openai.Error
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
