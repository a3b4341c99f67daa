package agent

import (
	"context"
	"fmt"

	"github.com/satibot/satibot/pkg/logger"
	"github.com/satibot/satibot/pkg/metrics"
	"github.com/satibot/satibot/pkg/providers"
	"github.com/satibot/satibot/pkg/tools"
)

// Run drives one conversation turn: ensure a system prompt, append the
// user's text, then iterate at most MaxIterations times, dispatching tool
// calls and feeding their results back, until the model produces a final
// text-only response or the bound is hit. onChunk may be nil; when set, it
// receives streamed text deltas as the same callback contract as
// providers.StreamCallback.
func (a *Agent) Run(ctx context.Context, text string, onChunk providers.StreamCallback) error {
	a.ensureSystemPrompt()
	a.context = append(a.context, providers.Message{Role: "user", Content: text})
	turnStart := len(a.context)

	toolDefs := convertToolDefs(a.registry.Definitions())

	var fingerprints []string
	iteration := 0

	for iteration < MaxIterations {
		iteration++

		if a.shutdown != nil && a.shutdown.IsSet() {
			a.saveSession()
			return ErrInterrupted
		}

		outbound := filterOutbound(a.context)
		if iteration >= 3 && len(fingerprints) > 0 {
			outbound = append(outbound, loopWarning(iteration, fingerprints[0]))
		}

		resp, err := a.provider.ChatStream(ctx, outbound, toolDefs, a.model, onChunk)
		if err != nil {
			a.saveSession()
			return err
		}

		a.context = append(a.context, assistantMessageFromResponse(resp))
		fingerprints = append(fingerprints, fingerprint(resp))
		a.recordUsage(resp, iteration)

		if len(resp.ToolCalls) == 0 {
			break
		}

		for _, call := range resp.ToolCalls {
			a.context = append(a.context, a.executeToolCall(ctx, call))
		}
	}

	a.saveSession()

	if lastAssistant := lastAssistantContent(a.context[turnStart:]); lastAssistant != "" {
		a.indexConversation(ctx, text, lastAssistant)
		a.extractKnowledge(text, lastAssistant)
	}

	return nil
}

// extractKnowledge fires the background fact-extraction pipeline for the
// turn just completed, in its own goroutine so a slow or failing extraction
// call never delays the reply already delivered to the caller. A nil
// extractor (knowledge store unavailable, or no provider configured for it)
// makes this a no-op.
func (a *Agent) extractKnowledge(userText, assistantText string) {
	if a.extractor == nil {
		return
	}
	sessionID := a.sessionID
	extractor := a.extractor
	go extractor.ExtractAndConsolidate(context.Background(), sessionID, userText, assistantText)
}

// executeToolCall runs one model-requested tool call and builds its
// role=tool result message. A known tool's error is wrapped as
// "Error executing tool X: <err>"; an unknown tool name never aborts the
// run — the model gets a chance to recover on the next iteration.
func (a *Agent) executeToolCall(ctx context.Context, call providers.ToolCall) providers.Message {
	name := call.ToolName()

	t, ok := a.registry.Get(name)
	if !ok {
		logger.WarnCF("agent", "tool not found", map[string]interface{}{
			"session_id": a.sessionID,
			"tool":       name,
		})
		return providers.Message{Role: "tool", ToolCallID: call.ID, Content: "Error: tool not found"}
	}

	logger.DebugCF("agent", "executing tool call", map[string]interface{}{
		"session_id": a.sessionID,
		"tool":       name,
	})

	result, err := t.Execute(ctx, a.toolCtx, call.ArgumentsJSON())
	if err != nil {
		return providers.Message{
			Role:       "tool",
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Error executing tool %s: %v", name, err),
		}
	}
	return providers.Message{Role: "tool", ToolCallID: call.ID, Content: result}
}

// recordUsage appends a token-usage event for one iteration's response to
// the shared metrics tracker, a no-op when either is unset (console/tests
// that don't wire a tracker, or an adapter that didn't report usage).
func (a *Agent) recordUsage(resp *providers.LLMResponse, iteration int) {
	if a.tracker == nil || resp.Usage == nil {
		return
	}
	var toolNames []string
	for _, tc := range resp.ToolCalls {
		toolNames = append(toolNames, tc.ToolName())
	}
	a.tracker.Record(metrics.TokenEvent{
		SessionKey:   a.sessionID,
		Model:        a.model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		ToolsUsed:    toolNames,
		Iteration:    iteration,
	})
}

// saveSession persists the current context, logging (but not propagating) a
// write failure: session I/O errors never abort an otherwise-successful run.
func (a *Agent) saveSession() {
	if a.sessions == nil {
		return
	}
	if err := a.sessions.Save(a.sessionID, a.context); err != nil {
		logger.ErrorCF("agent", "failed to save session", map[string]interface{}{
			"session_id": a.sessionID,
			"error":      err.Error(),
		})
	}
}

// lastAssistantContent returns the most recent non-empty assistant text in
// the context, or "" if none.
func lastAssistantContent(messages []providers.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}

func convertToolDefs(defs []tools.Definition) []providers.ToolDefinition {
	out := make([]providers.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, providers.ToolDefinition{
			Type: "function",
			Function: providers.FunctionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}
