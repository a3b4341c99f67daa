package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/satibot/satibot/pkg/logger"
	"github.com/satibot/satibot/pkg/providers"
)

// similarityThreshold gates which existing facts are considered candidates
// for consolidation against a newly extracted fact.
const similarityThreshold = 0.8

// KnowledgeExtractor runs the background, Mem0-style extraction pipeline:
// after a completed run, pull durable facts out of the turn and consolidate
// them (ADD/UPDATE/DELETE/NOOP) into a KnowledgeStore. It never touches the
// JSON-backed VectorStore.
type KnowledgeExtractor struct {
	provider providers.LLMProvider
	model    string
	store    *KnowledgeStore
}

// ExtractedFact is one durable statement pulled out of a conversation turn.
type ExtractedFact struct {
	Fact     string `json:"fact"`
	Category string `json:"category"`
}

// consolidationAction is the LLM's decision for how to merge a fact against
// similar existing knowledge.
type consolidationAction struct {
	Action  string `json:"action"` // ADD, UPDATE, DELETE, NOOP
	FactID  string `json:"fact_id"`
	NewFact string `json:"new_fact"`
}

// NewKnowledgeExtractor builds an extractor backed by provider/model for its
// own (non-user-facing) extraction and consolidation calls.
func NewKnowledgeExtractor(provider providers.LLMProvider, model string, store *KnowledgeStore) *KnowledgeExtractor {
	return &KnowledgeExtractor{provider: provider, model: model, store: store}
}

// ExtractAndConsolidate extracts facts from one user/assistant turn and
// consolidates each into the knowledge store. Errors are logged and
// swallowed: this pipeline must never fail the caller's run().
func (ke *KnowledgeExtractor) ExtractAndConsolidate(ctx context.Context, sessionKey, userMsg, assistantMsg string) {
	facts, err := ke.extractFacts(ctx, userMsg, assistantMsg)
	if err != nil {
		logger.WarnCF("memory", "knowledge extraction failed", map[string]interface{}{
			"error":       err.Error(),
			"session_key": sessionKey,
		})
		return
	}
	if len(facts) == 0 {
		return
	}

	logger.InfoCF("memory", "extracted facts from conversation", map[string]interface{}{
		"count":       len(facts),
		"session_key": sessionKey,
	})

	for _, fact := range facts {
		if err := ke.consolidateFact(ctx, fact); err != nil {
			logger.WarnCF("memory", "failed to consolidate fact", map[string]interface{}{
				"error": err.Error(),
				"fact":  fact.Fact,
			})
		}
	}
}

const extractionPrompt = `Extract key facts about the user from this conversation. Focus on:
- Biographical information (name, location, occupation, plans)
- Preferences and opinions
- Tasks, deadlines, goals
- Relationships (people mentioned)
- Important context (events, decisions, states)

Return a JSON array of facts. Each fact should be a self-contained statement.
If no meaningful facts can be extracted, return an empty array [].

Categories: biographical, preference, task, relationship, contextual

CONVERSATION:
User: %s
Assistant: %s

Return ONLY valid JSON, no markdown fences or explanation.`

func (ke *KnowledgeExtractor) extractFacts(ctx context.Context, userMsg, assistantMsg string) ([]ExtractedFact, error) {
	if len(userMsg) < 10 {
		return nil, nil
	}

	prompt := fmt.Sprintf(extractionPrompt, userMsg, truncate(assistantMsg, 2000))
	content, err := ke.callOnce(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	var facts []ExtractedFact
	if err := json.Unmarshal([]byte(content), &facts); err != nil {
		var single ExtractedFact
		if err2 := json.Unmarshal([]byte(content), &single); err2 == nil && single.Fact != "" {
			facts = []ExtractedFact{single}
		} else {
			return nil, fmt.Errorf("parse extracted facts: %w (response: %s)", err, truncate(content, 200))
		}
	}
	return facts, nil
}

func (ke *KnowledgeExtractor) consolidateFact(ctx context.Context, fact ExtractedFact) error {
	existing, err := ke.store.Search(ctx, fact.Fact, 3)
	if err != nil {
		return ke.store.Index(ctx, "", fact.Fact, fact.Category)
	}

	var similar []KnowledgeResult
	for _, r := range existing {
		if r.Score > similarityThreshold {
			similar = append(similar, r)
		}
	}
	if len(similar) == 0 {
		return ke.store.Index(ctx, "", fact.Fact, fact.Category)
	}

	action, err := ke.decideAction(ctx, fact, similar)
	if err != nil {
		logger.WarnCF("memory", "consolidation decision failed, adding as new", map[string]interface{}{
			"error": err.Error(),
		})
		return ke.store.Index(ctx, "", fact.Fact, fact.Category)
	}

	switch action.Action {
	case "UPDATE":
		if action.FactID != "" {
			_ = ke.store.Delete(ctx, action.FactID)
		}
		newFact := action.NewFact
		if newFact == "" {
			newFact = fact.Fact
		}
		return ke.store.Index(ctx, "", newFact, fact.Category)
	case "DELETE":
		if action.FactID != "" {
			return ke.store.Delete(ctx, action.FactID)
		}
		return nil
	case "NOOP":
		return nil
	default: // ADD, or anything unrecognized
		return ke.store.Index(ctx, "", fact.Fact, fact.Category)
	}
}

const consolidationPrompt = `You are managing a knowledge base about a user. A new fact has been extracted from a conversation, and similar existing facts were found.

NEW FACT: %s

EXISTING SIMILAR FACTS:
%s

Decide what to do:
- UPDATE: The new fact updates/replaces an existing one (e.g., new address replaces old). Return the merged fact.
- DELETE: An existing fact is now obsolete due to the new fact. Specify which to delete.
- NOOP: The new fact is essentially the same as an existing one. No action needed.
- ADD: The new fact is related but distinct from existing facts. Add it.

Return ONLY valid JSON:
{"action": "UPDATE|DELETE|NOOP|ADD", "fact_id": "id_of_existing_fact_if_applicable", "new_fact": "merged fact text for UPDATE"}
`

func (ke *KnowledgeExtractor) decideAction(ctx context.Context, fact ExtractedFact, similar []KnowledgeResult) (*consolidationAction, error) {
	var lines []string
	for _, s := range similar {
		lines = append(lines, fmt.Sprintf("- [ID: %s] %s (score: %.2f)", s.ID, s.Content, s.Score))
	}
	prompt := fmt.Sprintf(consolidationPrompt, fact.Fact, strings.Join(lines, "\n"))

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	content, err := ke.callOnce(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("consolidation call: %w", err)
	}

	var action consolidationAction
	if err := json.Unmarshal([]byte(content), &action); err != nil {
		return nil, fmt.Errorf("parse consolidation action: %w", err)
	}
	return &action, nil
}

// callOnce issues a single non-streaming provider call and returns the
// trimmed text response. The extractor never streams: its calls are
// background bookkeeping, not user-facing output.
func (ke *KnowledgeExtractor) callOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := ke.provider.ChatStream(ctx, []providers.Message{
		{Role: "user", Content: prompt},
	}, nil, ke.model, nil)
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(resp.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content), nil
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
