package session

import (
	"testing"

	"github.com/satibot/satibot/pkg/providers"
)

func TestLoadMissingSessionReturnsErrNotFound(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Load("does-not-exist"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	want := []providers.Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	if err := store.Save("chat-1", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("chat-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSaveOverwritesPreviousContent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := store.Save("chat-1", []providers.Message{{Role: "user", Content: "first"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save("chat-1", []providers.Message{{Role: "user", Content: "second"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("chat-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Content != "second" {
		t.Errorf("got %+v, want single message %q", got, "second")
	}
}

func TestSessionIDWithPathSeparatorsStaysInsideDir(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := store.Save("../../etc/passwd", []providers.Message{{Role: "user", Content: "x"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := store.path("../../etc/passwd"); got != store.path("passwd") {
		t.Errorf("sanitizeID let a path traversal through: %q", got)
	}
}
