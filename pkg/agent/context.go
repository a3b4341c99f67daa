package agent

import (
	"fmt"

	"github.com/satibot/satibot/pkg/providers"
)

// ensureSystemPrompt adds a default system message at the front of the
// context iff one isn't already present.
func (a *Agent) ensureSystemPrompt() {
	for _, msg := range a.context {
		if msg.Role == "system" {
			return
		}
	}
	a.context = append([]providers.Message{{Role: "system", Content: defaultSystemPrompt}}, a.context...)
}

// filterOutbound builds the payload sent to a provider on one iteration:
// the persistent context with any assistant message that has both empty
// content and no tool calls dropped. An empty assistant turn from a
// misbehaving provider stays in the persistent history for auditability but
// is never resent. The persistent context itself is not mutated here;
// filtering happens fresh on every iteration.
func filterOutbound(messages []providers.Message) []providers.Message {
	filtered := make([]providers.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "assistant" && msg.Content == "" && len(msg.ToolCalls) == 0 {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered
}

// loopWarning builds the transient, never-persisted system message injected
// from iteration 3 onward: it warns the model with a truncated copy of its
// first response so it can break out of a repeating tool-call pattern.
func loopWarning(iteration int, firstResult string) providers.Message {
	return providers.Message{
		Role:    "system",
		Content: fmt.Sprintf("iteration %d; first response was: %q", iteration, truncateFingerprint(firstResult)),
	}
}

// fingerprint records what one iteration produced, for later use in a loop
// warning: the text content if any, otherwise a summary of which tools were
// called.
func fingerprint(resp *providers.LLMResponse) string {
	if resp.Content != "" {
		return resp.Content
	}
	names := make([]string, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		names = append(names, tc.ToolName())
	}
	return "Tool calls: " + joinNames(names)
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

const fingerprintTruncateLen = 200

func truncateFingerprint(s string) string {
	runes := []rune(s)
	if len(runes) <= fingerprintTruncateLen {
		return s
	}
	return string(runes[:fingerprintTruncateLen]) + "..."
}

// assistantMessageFromResponse builds the persisted assistant message for
// one iteration's response.
func assistantMessageFromResponse(resp *providers.LLMResponse) providers.Message {
	return providers.Message{
		Role:      "assistant",
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	}
}
