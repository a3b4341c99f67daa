package telegram

import (
	"context"
	"sync"
	"testing"

	"github.com/mymmrac/telego"
)

// fakeClient records every send/edit so preview behavior can be asserted
// without a real bot token.
type fakeClient struct {
	mu     sync.Mutex
	sent   []string
	edits  []string
	nextID int
}

func (c *fakeClient) GetUpdates(ctx context.Context, offset int) ([]telego.Update, error) {
	return nil, nil
}

func (c *fakeClient) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	c.nextID++
	return c.nextID, nil
}

func (c *fakeClient) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, text)
	return nil
}

func (c *fakeClient) SendTyping(ctx context.Context, chatID int64) error {
	return nil
}

func TestPreviewFirstUpdateSendsThenEdits(t *testing.T) {
	client := &fakeClient{}
	p := &streamPreview{client: client, chatID: 1}

	p.update("partial")
	p.update("partial answer")

	if len(client.sent) != 1 || client.sent[0] != "partial" {
		t.Errorf("sent = %v, want one send of the first flush", client.sent)
	}
	if len(client.edits) != 1 || client.edits[0] != "partial answer" {
		t.Errorf("edits = %v, want one edit with the accumulated text", client.edits)
	}
}

func TestPreviewSkipsUnchangedText(t *testing.T) {
	client := &fakeClient{}
	p := &streamPreview{client: client, chatID: 1}

	p.update("same")
	p.update("same")

	if len(client.sent) != 1 || len(client.edits) != 0 {
		t.Errorf("unchanged text should not re-send or edit: sent=%v edits=%v", client.sent, client.edits)
	}
}

func TestFinalizeWithoutPreviewReportsNotConsumed(t *testing.T) {
	client := &fakeClient{}
	p := &streamPreview{client: client, chatID: 1}

	if p.finalize(context.Background(), "final") {
		t.Error("finalize with no preview message should report not consumed")
	}
	if len(client.edits) != 0 {
		t.Errorf("no edit expected, got %v", client.edits)
	}
}

func TestFinalizeEditsPreviewIntoFinalText(t *testing.T) {
	client := &fakeClient{}
	p := &streamPreview{client: client, chatID: 1}

	p.update("partial")
	if !p.finalize(context.Background(), "the full answer") {
		t.Fatal("finalize should consume the final text")
	}
	if len(client.edits) != 1 || client.edits[0] != "the full answer" {
		t.Errorf("edits = %v, want the final text", client.edits)
	}
}

func TestFinalizeWithIdenticalTextSkipsRedundantEdit(t *testing.T) {
	client := &fakeClient{}
	p := &streamPreview{client: client, chatID: 1}

	p.update("done")
	if !p.finalize(context.Background(), "done") {
		t.Fatal("finalize with identical text should still report consumed")
	}
	if len(client.edits) != 0 {
		t.Errorf("identical final text should not trigger an edit, got %v", client.edits)
	}
}
