// Package telegram implements the bot front-end: a long-poll loop with
// explicit offset discipline, a per-chat agent cache with idle eviction, a
// typing-indicator side channel, and scalar-safe outbound chunking, built
// on github.com/mymmrac/telego.
package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"

	"github.com/satibot/satibot/pkg/logger"
)

// Client wraps the subset of the Telegram Bot API the dispatcher needs:
// polling for updates, sending a reply, editing an in-progress one, and
// showing a typing indicator. Kept deliberately thin so the dispatcher's
// control flow (offset discipline, per-chat serialization) stays testable
// against a fake.
type Client interface {
	GetUpdates(ctx context.Context, offset int) ([]telego.Update, error)
	// SendMessage returns the sent message's id so the caller can edit it later.
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string) error
	SendTyping(ctx context.Context, chatID int64) error
}

// botClient is the production Client, backed by a real telego.Bot.
type botClient struct {
	bot *telego.Bot
}

// pollTimeoutSeconds is the long-poll server-side wait.
const pollTimeoutSeconds = 5

// NewClient builds a Client authenticated with token. Telego's own logger is
// discarded in favor of the zerolog-based logger package every other
// component uses, so log output stays uniform across front-ends.
func NewClient(token string) (Client, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &botClient{bot: bot}, nil
}

// GetUpdates pulls one batch starting at offset, with allowed_updates
// limited to message so edits/channel posts/etc. never surface here.
func (c *botClient) GetUpdates(ctx context.Context, offset int) ([]telego.Update, error) {
	return c.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:         offset,
		Timeout:        pollTimeoutSeconds,
		AllowedUpdates: []string{"message"},
	})
}

// SendMessage sends one already-chunked piece of text to chatID, returning
// the new message's id.
func (c *botClient) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	})
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessage replaces the text of a previously sent message in place.
func (c *botClient) EditMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: messageID,
		Text:      text,
	})
	return err
}

// SendTyping posts one "typing" chat action.
func (c *botClient) SendTyping(ctx context.Context, chatID int64) error {
	return c.bot.SendChatAction(ctx, &telego.SendChatActionParams{
		ChatID: telego.ChatID{ID: chatID},
		Action: telego.ChatActionTyping,
	})
}

// logPollError logs a failed poll for dispatcher.go's retry path.
func logPollError(err error) {
	logger.WarnCF("telegram", "poll failed, offset not advanced", map[string]interface{}{
		"error": err.Error(),
	})
}
