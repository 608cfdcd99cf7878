// Package app assembles the orchestrator: durable store, group queue,
// container runner, message router, task scheduler, IPC watcher, admin
// API, and the Telegram transport. It owns startup order and graceful
// shutdown.
package app

import (
	"context"
	"sync"

	"github.com/aatumaykin/nanoclaw/internal/api"
	"github.com/aatumaykin/nanoclaw/internal/config"
	"github.com/aatumaykin/nanoclaw/internal/container"
	"github.com/aatumaykin/nanoclaw/internal/ipc"
	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/queue"
	"github.com/aatumaykin/nanoclaw/internal/router"
	"github.com/aatumaykin/nanoclaw/internal/scheduler"
	"github.com/aatumaykin/nanoclaw/internal/snapshot"
	"github.com/aatumaykin/nanoclaw/internal/store"
	"github.com/aatumaykin/nanoclaw/internal/telegram"
)

// App holds every component and manages its lifecycle.
type App struct {
	config *config.Config
	logger *logger.Logger

	store     *store.Store
	snapshots *snapshot.Writer
	queue     *queue.GroupQueue
	runner    *container.Runner
	router    *router.Router
	scheduler *scheduler.Scheduler
	watcher   *ipc.Watcher
	apiServer *api.Server
	transport *telegram.Connector

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// New creates an App. Components are built in Initialize.
func New(cfg *config.Config, log *logger.Logger) *App {
	return &App{
		config: cfg,
		logger: log,
	}
}

// Run initializes all components and blocks until the context is
// cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		return err
	}

	a.logger.Info("application is running")

	<-ctx.Done()

	return a.Shutdown()
}

// sendMessage routes outbound text through the transport. With the
// transport disabled the message is logged and dropped so agent flows
// still complete in development setups.
func (a *App) sendMessage(ctx context.Context, chatJID, text string) error {
	if a.transport == nil {
		a.logger.Info("outbound message dropped, transport disabled",
			logger.Field{Key: "chat_jid", Value: chatJID},
			logger.Field{Key: "length", Value: len(text)})
		return nil
	}
	return a.transport.SendMessage(ctx, chatJID, text)
}

func (a *App) setTyping(ctx context.Context, chatJID string, typing bool) {
	if a.transport == nil {
		return
	}
	a.transport.SetTyping(ctx, chatJID, typing)
}
