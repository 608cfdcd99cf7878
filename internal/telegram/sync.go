package telegram

import (
	"context"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

const (
	groupSyncInterval = 24 * time.Hour
	lastGroupSyncKey  = "last_group_sync"
)

func (c *Connector) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(groupSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.SyncGroupMetadata(ctx, true); err != nil {
				c.logger.Error("periodic group sync failed", err)
			}
		}
	}
}

// SyncGroupMetadata refreshes chat titles for every registered group.
// Results are cached for a day; force bypasses the cache.
func (c *Connector) SyncGroupMetadata(ctx context.Context, force bool) error {
	if !force {
		last, err := c.deps.Store.RouterState(lastGroupSyncKey)
		if err == nil && last != "" {
			if t, perr := store.ParseTime(last); perr == nil && time.Since(t) < groupSyncInterval {
				c.logger.Debug("group metadata sync skipped, cache is fresh",
					logger.Field{Key: "last_sync", Value: last})
				return nil
			}
		}
	}

	groups := c.deps.Groups()
	c.logger.Info("syncing group metadata",
		logger.Field{Key: "group_count", Value: len(groups)})

	for jid := range groups {
		chatID, err := strconv.ParseInt(jid, 10, 64)
		if err != nil {
			continue
		}
		info, err := c.bot.GetChat(ctx, &telego.GetChatParams{
			ChatID: telego.ChatID{ID: chatID},
		})
		if err != nil {
			c.logger.Error("failed to fetch chat info", err,
				logger.Field{Key: "chat_jid", Value: jid})
			continue
		}
		if info.Title == "" {
			continue
		}
		if err := c.deps.Store.StoreChatMetadata(jid, store.Now()); err != nil {
			c.logger.Error("failed to store chat metadata", err,
				logger.Field{Key: "chat_jid", Value: jid})
			continue
		}
		if err := c.deps.Store.UpdateChatName(jid, info.Title); err != nil {
			c.logger.Error("failed to update chat name", err,
				logger.Field{Key: "chat_jid", Value: jid})
		}
	}

	return c.deps.Store.SetRouterState(lastGroupSyncKey, store.Now())
}
