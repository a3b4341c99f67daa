package telegram

import (
	"context"
	"sync"

	"github.com/satibot/satibot/pkg/logger"
)

// streamPreview posts a single in-progress message for one reply and edits it
// in place as streamed text accumulates, so the user watches the answer grow
// instead of waiting silently behind the typing indicator. The throttling of
// how often update fires belongs to bus.StreamNotifier; this type only holds
// the message id and the last text it pushed.
type streamPreview struct {
	client Client
	chatID int64

	mu        sync.Mutex
	messageID int
	lastText  string
}

// update pushes the accumulated text so far: the first call sends a fresh
// message, later calls edit it. Called from the notifier's goroutine; failures
// are logged and dropped, since a missed preview edit costs nothing.
func (p *streamPreview) update(full string) {
	text := previewText(full)

	p.mu.Lock()
	defer p.mu.Unlock()
	if text == p.lastText {
		return
	}

	ctx := context.Background()
	if p.messageID == 0 {
		id, err := p.client.SendMessage(ctx, p.chatID, text)
		if err != nil {
			logger.DebugCF("telegram", "preview send failed", map[string]interface{}{
				"chat_id": p.chatID,
				"error":   err.Error(),
			})
			return
		}
		p.messageID = id
	} else if err := p.client.EditMessage(ctx, p.chatID, p.messageID, text); err != nil {
		logger.DebugCF("telegram", "preview edit failed", map[string]interface{}{
			"chat_id": p.chatID,
			"error":   err.Error(),
		})
		return
	}
	p.lastText = text
}

// finalize replaces the preview with final (already chunk-sized) text,
// reporting whether final was consumed. False means no preview message exists
// (nothing was streamed, or the first send failed) and the caller should send
// final as a fresh message instead.
func (p *streamPreview) finalize(ctx context.Context, final string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messageID == 0 {
		return false
	}
	if final == p.lastText {
		return true
	}
	if err := p.client.EditMessage(ctx, p.chatID, p.messageID, final); err != nil {
		logger.WarnCF("telegram", "final preview edit failed, sending fresh message", map[string]interface{}{
			"chat_id": p.chatID,
			"error":   err.Error(),
		})
		return false
	}
	p.lastText = final
	return true
}

// previewText bounds an in-progress preview to one message's worth of
// scalars. Only the preview is truncated; the final reply is chunked in full.
func previewText(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxMessageScalars {
		return s
	}
	return string(runes[:MaxMessageScalars])
}
