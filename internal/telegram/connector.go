// Package telegram connects the orchestrator to Telegram using the Telego
// library. Inbound text is written to the message store for the router to
// pick up; outbound replies are sent with chunking for Telegram's message
// size limit.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

// Deps are the collaborators inbound traffic is handed to.
type Deps struct {
	Store *store.Store
	// Groups returns the registered groups keyed by chat JID. Message
	// content is only stored for registered chats.
	Groups func() map[string]*store.RegisteredGroup
	// OnNewMessage is invoked after a message is stored. May be nil; the
	// router's poll loop picks messages up regardless.
	OnNewMessage func(chatJID string)
}

// Config tunes the connector.
type Config struct {
	Enabled bool
	Token   string
}

// Connector is the Telegram transport.
type Connector struct {
	cfg    Config
	deps   Deps
	logger *logger.Logger
	bot    BotInterface
	botID  int64
	cancel context.CancelFunc
}

// New creates a Connector. Start wires the actual bot.
func New(cfg Config, deps Deps, log *logger.Logger) *Connector {
	return &Connector{cfg: cfg, deps: deps, logger: log}
}

// Start initializes the Telegram bot and starts listening for updates.
func (c *Connector) Start(ctx context.Context) error {
	c.logger.Info("starting telegram connector",
		logger.Field{Key: "enabled", Value: c.cfg.Enabled})

	if !c.cfg.Enabled {
		c.logger.Info("telegram connector disabled in config")
		return nil
	}
	if c.cfg.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	bot, err := telego.NewBot(c.cfg.Token)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	c.bot = NewBotAdapter(bot)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	botUser, err := c.bot.GetMe(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	c.botID = botUser.ID
	c.logger.Info("telegram bot initialized",
		logger.Field{Key: "bot_id", Value: botUser.ID},
		logger.Field{Key: "username", Value: botUser.Username})

	if err := c.SyncGroupMetadata(ctx, false); err != nil {
		c.logger.Error("initial group sync failed", err)
	}

	go c.longPoll(runCtx)
	go c.syncLoop(runCtx)
	return nil
}

// Stop gracefully stops the connector.
func (c *Connector) Stop() error {
	c.logger.Info("stopping telegram connector")
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return nil
}

func (c *Connector) longPoll(ctx context.Context) {
	c.logger.Info("starting long polling for telegram updates")

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		c.logger.Error("failed to start long polling", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("long polling stopped")
			return
		case update, ok := <-updates:
			if !ok {
				c.logger.Info("updates channel closed")
				return
			}
			if err := c.handleUpdate(update); err != nil {
				c.logger.Error("failed to handle update", err)
			}
		}
	}
}

// handleUpdate stores one inbound text message. Chat metadata is always
// recorded for group discovery; full content only for registered chats.
func (c *Connector) handleUpdate(update telego.Update) error {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return nil
	}

	chatJID := strconv.FormatInt(msg.Chat.ID, 10)
	timestamp := store.FormatTime(time.Unix(msg.Date, 0))

	senderID := ""
	senderName := "Unknown"
	fromMe := false
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
		if msg.From.FirstName != "" {
			senderName = msg.From.FirstName
		}
		fromMe = msg.From.ID == c.botID
	}

	c.logger.Info("incoming message",
		logger.Field{Key: "chat_jid", Value: chatJID},
		logger.Field{Key: "sender", Value: senderName},
		logger.Field{Key: "chat_type", Value: string(msg.Chat.Type)})

	if err := c.deps.Store.StoreChatMetadata(chatJID, timestamp); err != nil {
		return fmt.Errorf("store chat metadata: %w", err)
	}
	if msg.Chat.Title != "" {
		if err := c.deps.Store.UpdateChatName(chatJID, msg.Chat.Title); err != nil {
			c.logger.Error("failed to update chat name", err,
				logger.Field{Key: "chat_jid", Value: chatJID})
		}
	}

	if c.deps.Groups()[chatJID] == nil {
		return nil
	}

	if err := c.deps.Store.StoreMessage(&store.Message{
		ID:         strconv.Itoa(msg.MessageID),
		ChatJID:    chatJID,
		Sender:     senderID,
		SenderName: senderName,
		Content:    msg.Text,
		Timestamp:  timestamp,
		IsFromMe:   fromMe,
	}); err != nil {
		return fmt.Errorf("store message: %w", err)
	}

	if c.deps.OnNewMessage != nil {
		c.deps.OnNewMessage(chatJID)
	}
	return nil
}
