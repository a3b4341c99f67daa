package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/satibot/satibot/pkg/memory"
)

func fakeEmbed(_ context.Context, texts []string) ([][]float64, error) {
	return memory.Generate(texts), nil
}

func newTestStore(t *testing.T) *memory.VectorStore {
	t.Helper()
	store := memory.NewVectorStore(filepath.Join(t.TempDir(), "vector_db.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return store
}

func TestVectorUpsertThenSearchRoundTrips(t *testing.T) {
	store := newTestStore(t)
	tc := &ToolContext{GetEmbeddings: fakeEmbed}

	upsert := NewVectorUpsertTool(store)
	if _, err := upsert.Execute(context.Background(), tc, `{"text":"the eiffel tower is in paris"}`); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := upsert.Execute(context.Background(), tc, `{"text":"the colosseum is in rome"}`); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	search := NewVectorSearchTool(store)
	out, err := search.Execute(context.Background(), tc, `{"query":"paris landmark","top_k":1}`)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if out == "" {
		t.Error("expected non-empty search result")
	}
}

func TestVectorSearchOnEmptyStoreReturnsZeroResults(t *testing.T) {
	store := newTestStore(t)
	tc := &ToolContext{GetEmbeddings: fakeEmbed}

	search := NewVectorSearchTool(store)
	out, err := search.Execute(context.Background(), tc, `{"query":"anything"}`)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if out != "Found 0 results" {
		t.Errorf("expected zero-result message, got %q", out)
	}
}

func TestVectorUpsertRejectsMissingText(t *testing.T) {
	store := newTestStore(t)
	tc := &ToolContext{GetEmbeddings: fakeEmbed}

	upsert := NewVectorUpsertTool(store)
	if _, err := upsert.Execute(context.Background(), tc, `{}`); err == nil {
		t.Error("expected error for missing text")
	}
}

func TestVectorSearchDefaultsTopKToThree(t *testing.T) {
	store := newTestStore(t)
	tc := &ToolContext{GetEmbeddings: fakeEmbed}

	upsert := NewVectorUpsertTool(store)
	for _, text := range []string{"a", "b", "c", "d"} {
		if _, err := upsert.Execute(context.Background(), tc, `{"text":"`+text+`"}`); err != nil {
			t.Fatalf("upsert %q: %v", text, err)
		}
	}

	search := NewVectorSearchTool(store)
	out, err := search.Execute(context.Background(), tc, `{"query":"a"}`)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.HasPrefix(out, "Found 3 results:") {
		t.Errorf("expected 3 results by default, got %q", out)
	}
}
