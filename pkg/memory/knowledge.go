package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/satibot/satibot/pkg/config"
	"github.com/satibot/satibot/pkg/logger"
)

// KnowledgeResult is a single search hit from the background knowledge index.
type KnowledgeResult struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	Score     float32 `json:"score"`
	Category  string  `json:"category,omitempty"`
	UpdatedAt string  `json:"updated_at"`
}

// KnowledgeStore wraps a chromem-go collection of durable facts extracted
// from conversations. It is distinct from the JSON-backed VectorStore
// (vectorstore.go): the two built-in tools (vector_upsert/vector_search)
// never touch it, and it never touches that store. Only the extractor
// (extractor.go) reads or writes it.
type KnowledgeStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	dbPath     string
}

// NewKnowledgeStore opens (or creates) a persistent chromem-go database at
// workspace/knowledge/.
func NewKnowledgeStore(workspacePath string, embeddingFn chromem.EmbeddingFunc) (*KnowledgeStore, error) {
	dbPath := filepath.Join(workspacePath, "knowledge")
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(dbPath, false)
	if err != nil {
		return nil, fmt.Errorf("open knowledge db: %w", err)
	}

	collection, err := db.GetOrCreateCollection("knowledge", nil, embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("create knowledge collection: %w", err)
	}

	logger.InfoCF("memory", "knowledge store initialized", map[string]interface{}{
		"path":  dbPath,
		"count": collection.Count(),
	})

	return &KnowledgeStore{db: db, collection: collection, dbPath: dbPath}, nil
}

// ResolveKnowledgeEmbeddingFunc picks the chromem-go embedding function the
// knowledge store indexes with, preferring a direct OpenAI key, then
// OpenRouter as an OpenAI-compatible fallback (prefixing the model with
// "openai/" the way OpenRouter's catalog names it). A nil result makes
// NewKnowledgeStore fall back to chromem-go's own default.
func ResolveKnowledgeEmbeddingFunc(cfg config.Config) chromem.EmbeddingFunc {
	model := cfg.Agents.Defaults.EmbeddingModel
	if model == "" || model == "local" {
		model = "text-embedding-3-small"
	}

	if cfg.Providers.OpenAI != nil && cfg.Providers.OpenAI.APIKey != "" {
		return chromem.NewEmbeddingFuncOpenAI(cfg.Providers.OpenAI.APIKey, chromem.EmbeddingModelOpenAI(model))
	}

	if cfg.Providers.OpenRouter != nil && cfg.Providers.OpenRouter.APIKey != "" {
		baseURL := cfg.Providers.OpenRouter.APIBase
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		orModel := model
		if !strings.Contains(orModel, "/") {
			orModel = "openai/" + orModel
		}
		return chromem.NewEmbeddingFuncOpenAICompat(baseURL, cfg.Providers.OpenRouter.APIKey, orModel, nil)
	}

	return nil
}

// Index adds or overwrites a fact under docID. If docID is empty, one is
// generated from the current time.
func (ks *KnowledgeStore) Index(ctx context.Context, docID, fact, category string) error {
	if docID == "" {
		docID = fmt.Sprintf("k:%d", time.Now().UnixNano())
	}

	doc := chromem.Document{
		ID:      docID,
		Content: fact,
		Metadata: map[string]string{
			"category":   category,
			"updated_at": time.Now().Format(time.RFC3339),
		},
	}
	if err := ks.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index knowledge: %w", err)
	}

	logger.DebugCF("memory", "indexed knowledge fact", map[string]interface{}{
		"doc_id":   docID,
		"category": category,
	})
	return nil
}

// Delete removes a fact by ID.
func (ks *KnowledgeStore) Delete(ctx context.Context, docID string) error {
	if err := ks.collection.Delete(ctx, nil, nil, docID); err != nil {
		return fmt.Errorf("delete knowledge %s: %w", docID, err)
	}
	return nil
}

// Search returns up to limit facts ranked by relevance to query.
func (ks *KnowledgeStore) Search(ctx context.Context, query string, limit int) ([]KnowledgeResult, error) {
	if ks.collection.Count() == 0 {
		return nil, nil
	}
	if limit > ks.collection.Count() {
		limit = ks.collection.Count()
	}

	results, err := ks.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}

	out := make([]KnowledgeResult, 0, len(results))
	for _, r := range results {
		out = append(out, KnowledgeResult{
			ID:        r.ID,
			Content:   r.Content,
			Score:     r.Similarity,
			Category:  r.Metadata["category"],
			UpdatedAt: r.Metadata["updated_at"],
		})
	}
	return out, nil
}

// FormatResults renders search results as a short bulleted list for
// inclusion in an LLM-facing message.
func FormatResults(results []KnowledgeResult) string {
	if len(results) == 0 {
		return "No knowledge found."
	}

	var sb strings.Builder
	for _, r := range results {
		cat := ""
		if r.Category != "" {
			cat = fmt.Sprintf(" (%s)", r.Category)
		}
		sb.WriteString(fmt.Sprintf("- %s%s\n", r.Content, cat))
	}
	return sb.String()
}
