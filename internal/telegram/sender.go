package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/nanoclaw/internal/logger"
)

// messageLimit is Telegram's maximum message length.
const messageLimit = 4096

// SendMessage delivers text to a chat, splitting it into chunks that fit
// Telegram's message limit. Splits prefer newline boundaries so formatted
// output survives chunking.
func (c *Connector) SendMessage(ctx context.Context, chatJID, text string) error {
	if c.bot == nil {
		return fmt.Errorf("telegram connector is not started")
	}
	chatID, err := strconv.ParseInt(chatJID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat jid %q: %w", chatJID, err)
	}

	for _, chunk := range splitMessage(text, messageLimit) {
		_, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID: telego.ChatID{ID: chatID},
			Text:   chunk,
		})
		if err != nil {
			return fmt.Errorf("send message to %s: %w", chatJID, err)
		}
	}

	c.logger.Debug("message sent",
		logger.Field{Key: "chat_jid", Value: chatJID},
		logger.Field{Key: "length", Value: len(text)})
	return nil
}

// SetTyping shows the typing indicator. Telegram has no action to clear it,
// so a false value is a no-op and the indicator expires on its own.
func (c *Connector) SetTyping(ctx context.Context, chatJID string, typing bool) {
	if !typing || c.bot == nil {
		return
	}
	chatID, err := strconv.ParseInt(chatJID, 10, 64)
	if err != nil {
		return
	}
	if err := c.bot.SendChatAction(ctx, &telego.SendChatActionParams{
		ChatID: telego.ChatID{ID: chatID},
		Action: telego.ChatActionTyping,
	}); err != nil {
		c.logger.Debug("failed to send typing action",
			logger.Field{Key: "chat_jid", Value: chatJID},
			logger.Field{Key: "error", Value: err.Error()})
	}
}

// splitMessage cuts text into chunks of at most limit bytes.
// Each cut lands on the last newline inside the window when one exists in
// the second half, otherwise at the hard limit.
func splitMessage(text string, limit int) []string {
	var chunks []string
	remaining := text
	for len(remaining) > limit {
		cutAt := strings.LastIndex(remaining[:limit], "\n")
		splitAt := limit
		if cutAt > limit/2 {
			splitAt = cutAt
		}
		chunks = append(chunks, remaining[:splitAt])
		remaining = strings.TrimPrefix(remaining[splitAt:], "\n")
	}
	if remaining != "" || len(chunks) == 0 {
		chunks = append(chunks, remaining)
	}
	return chunks
}
