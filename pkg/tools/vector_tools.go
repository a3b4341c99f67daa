package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/satibot/satibot/pkg/memory"
)

// defaultTopK is vector_search's default result count when top_k is omitted.
const defaultTopK = 3

// VectorUpsertTool is the vector_upsert built-in tool: embeds args.text,
// appends it to the shared VectorStore, and persists the store.
type VectorUpsertTool struct {
	store *memory.VectorStore
}

// NewVectorUpsertTool builds the tool against the agent's shared store.
func NewVectorUpsertTool(store *memory.VectorStore) *VectorUpsertTool {
	return &VectorUpsertTool{store: store}
}

func (t *VectorUpsertTool) Name() string { return "vector_upsert" }

func (t *VectorUpsertTool) Description() string {
	return "Store a piece of text in long-term memory so it can be recalled later by vector_search."
}

func (t *VectorUpsertTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "The text to remember.",
			},
		},
		"required": []string{"text"},
	}
}

type vectorUpsertArgs struct {
	Text string `json:"text"`
}

func (t *VectorUpsertTool) Execute(ctx context.Context, tc *ToolContext, argsJSON string) (string, error) {
	var args vectorUpsertArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if args.Text == "" {
		return "", fmt.Errorf("text is required")
	}

	vectors, err := tc.GetEmbeddings(ctx, []string{args.Text})
	if err != nil {
		return "", fmt.Errorf("compute embedding: %w", err)
	}
	if len(vectors) == 0 {
		return "", fmt.Errorf("embedder returned no vector")
	}

	if err := t.store.Add(args.Text, vectors[0]); err != nil {
		return "", fmt.Errorf("store entry: %w", err)
	}

	return fmt.Sprintf("Remembered: %q", args.Text), nil
}

// VectorSearchTool is the vector_search built-in tool: embeds args.query
// and returns the top_k most similar stored texts.
type VectorSearchTool struct {
	store *memory.VectorStore
}

// NewVectorSearchTool builds the tool against the agent's shared store.
func NewVectorSearchTool(store *memory.VectorStore) *VectorSearchTool {
	return &VectorSearchTool{store: store}
}

func (t *VectorSearchTool) Name() string { return "vector_search" }

func (t *VectorSearchTool) Description() string {
	return "Search long-term memory for text previously stored with vector_upsert, ranked by similarity to the query."
}

func (t *VectorSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Natural language query describing what to recall.",
			},
			"top_k": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of results to return (default 3).",
				"minimum":     1,
			},
		},
		"required": []string{"query"},
	}
}

type vectorSearchArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (t *VectorSearchTool) Execute(ctx context.Context, tc *ToolContext, argsJSON string) (string, error) {
	var args vectorSearchArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if args.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	topK := args.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	vectors, err := tc.GetEmbeddings(ctx, []string{args.Query})
	if err != nil {
		return "", fmt.Errorf("compute embedding: %w", err)
	}
	if len(vectors) == 0 {
		return "", fmt.Errorf("embedder returned no vector")
	}

	results := t.store.Search(vectors[0], topK)
	if len(results) == 0 {
		return "Found 0 results", nil
	}

	out := fmt.Sprintf("Found %d results:\n", len(results))
	for i, r := range results {
		out += fmt.Sprintf("%d. %s\n", i+1, r.Text)
	}
	return out, nil
}
