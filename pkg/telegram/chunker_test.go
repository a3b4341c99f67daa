package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkSplitsOnMaxScalars(t *testing.T) {
	text := strings.Repeat("a", MaxMessageScalars+1)
	chunks := Chunk(text)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len([]rune(chunks[0])) != MaxMessageScalars {
		t.Errorf("first chunk has %d scalars, want %d", len([]rune(chunks[0])), MaxMessageScalars)
	}
	if len([]rune(chunks[1])) != 1 {
		t.Errorf("second chunk has %d scalars, want 1", len([]rune(chunks[1])))
	}
}

// TestChunkNeverSplitsACodepoint checks a message whose 4-byte codepoint
// sits at the scalar boundary comes out intact in whichever chunk it
// started in.
func TestChunkNeverSplitsACodepoint(t *testing.T) {
	const multiByteRune = "\U0001F600" // 4-byte UTF-8 codepoint
	runes := make([]rune, 0, MaxMessageScalars+1)
	for i := 0; i < MaxMessageScalars-1; i++ {
		runes = append(runes, 'a')
	}
	runes = append(runes, []rune(multiByteRune)...)
	runes = append(runes, 'b')
	text := string(runes)
	if utf8.RuneCountInString(text) != MaxMessageScalars+1 {
		t.Fatalf("test fixture has %d scalars, want %d", utf8.RuneCountInString(text), MaxMessageScalars+1)
	}

	chunks := Chunk(text)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for _, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk is not valid UTF-8: %q", c)
		}
		if len([]rune(c)) > MaxMessageScalars {
			t.Errorf("chunk has %d scalars, exceeds %d", len([]rune(c)), MaxMessageScalars)
		}
	}
	if !strings.Contains(chunks[0]+chunks[1], multiByteRune) {
		t.Error("multi-byte codepoint did not survive intact in either chunk")
	}
}

func TestChunkEmptyStringYieldsNoChunks(t *testing.T) {
	if chunks := Chunk(""); chunks != nil {
		t.Errorf("got %v, want nil", chunks)
	}
}

func TestChunkShortTextYieldsOneChunk(t *testing.T) {
	chunks := Chunk("hello")
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("got %v, want [\"hello\"]", chunks)
	}
}
