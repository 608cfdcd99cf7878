package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/snapshot"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

// Deps are the collaborators drop-box actions are dispatched to.
type Deps struct {
	Store       *store.Store
	Snapshots   *snapshot.Writer
	SendMessage func(ctx context.Context, jid, text string) error
	// Groups returns the registered groups keyed by chat JID.
	Groups func() map[string]*store.RegisteredGroup
	// RegisterGroup persists a group and updates the live cache.
	RegisterGroup func(g *store.RegisteredGroup) error
	// SyncGroups refreshes chat metadata from the transport. May be nil
	// when no transport is connected.
	SyncGroups func(ctx context.Context) error
}

// Config tunes the watcher.
type Config struct {
	DataDir       string
	GroupsDir     string
	MainFolder    string
	AssistantName string
	Timezone      *time.Location
	PollInterval  time.Duration
}

// Watcher polls the per-group drop-box directories and dispatches the
// action files it finds.
type Watcher struct {
	deps   Deps
	cfg    Config
	logger *logger.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a Watcher.
func NewWatcher(deps Deps, cfg Config, log *logger.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	return &Watcher{deps: deps, cfg: cfg, logger: log}
}

func (w *Watcher) baseDir() string {
	return filepath.Join(w.cfg.DataDir, "ipc")
}

// Start launches the poll loop. It returns immediately.
func (w *Watcher) Start() error {
	if w.cancel != nil {
		w.logger.Debug("ipc watcher already running, skipping duplicate start")
		return nil
	}
	if err := os.MkdirAll(w.baseDir(), 0755); err != nil {
		return fmt.Errorf("failed to create ipc directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.logger.Info("ipc watcher started",
		logger.Field{Key: "poll_interval", Value: w.cfg.PollInterval.String()})

	go w.loop(ctx)
	return nil
}

// Stop halts the poll loop.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.scan(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// scan walks every group namespace once. Each subdirectory name is the
// verified identity of whoever wrote into it.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.baseDir())
	if err != nil {
		w.logger.Error("failed to read ipc base directory", err)
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "errors" {
			continue
		}
		sourceGroup := entry.Name()
		isMain := sourceGroup == w.cfg.MainFolder

		w.processDir(ctx, sourceGroup, "messages", func(a *Action) error {
			return w.handleMessage(ctx, a, sourceGroup, isMain)
		})
		w.processDir(ctx, sourceGroup, "tasks", func(a *Action) error {
			return w.dispatch(ctx, a, sourceGroup, isMain)
		})
	}
}

// processDir consumes every .json file in one drop-box subdirectory.
// Handled files are deleted; files that fail to parse or whose handler
// errors are quarantined so a bad file never blocks the ones behind it.
func (w *Watcher) processDir(ctx context.Context, sourceGroup, sub string, handle func(*Action) error) {
	dir := filepath.Join(w.baseDir(), sourceGroup, sub)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Error("failed to read ipc directory", err,
				logger.Field{Key: "dir", Value: dir})
		}
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		if err := w.processFile(path, handle); err != nil {
			w.logger.Error("failed to process ipc file", err,
				logger.Field{Key: "file", Value: entry.Name()},
				logger.Field{Key: "source_group", Value: sourceGroup})
			w.quarantine(path, sourceGroup, entry.Name())
			continue
		}
		if err := os.Remove(path); err != nil {
			w.logger.Error("failed to remove processed ipc file", err,
				logger.Field{Key: "file", Value: entry.Name()})
		}
	}
}

func (w *Watcher) processFile(path string, handle func(*Action) error) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	var action Action
	if err := json.Unmarshal(raw, &action); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return handle(&action)
}

// quarantine moves a failed file to the errors directory, namespaced by
// its source, so operators can inspect it.
func (w *Watcher) quarantine(path, sourceGroup, name string) {
	errorDir := filepath.Join(w.baseDir(), "errors")
	if err := os.MkdirAll(errorDir, 0755); err != nil {
		w.logger.Error("failed to create quarantine directory", err)
		return
	}
	dest := filepath.Join(errorDir, sourceGroup+"-"+name)
	if err := os.Rename(path, dest); err != nil {
		w.logger.Error("failed to quarantine ipc file", err,
			logger.Field{Key: "file", Value: name})
	}
}

// handleMessage forwards an outbound chat message. A non-main group may
// only write into its own conversation.
func (w *Watcher) handleMessage(ctx context.Context, a *Action, sourceGroup string, isMain bool) error {
	if a.Type != "message" || a.ChatJID == "" || a.Text == "" {
		return nil
	}

	target := w.deps.Groups()[a.ChatJID]
	if !isMain && (target == nil || target.Folder != sourceGroup) {
		w.logger.Warn("unauthorized ipc message attempt blocked",
			logger.Field{Key: "chat_jid", Value: a.ChatJID},
			logger.Field{Key: "source_group", Value: sourceGroup})
		return nil
	}

	if err := w.deps.SendMessage(ctx, a.ChatJID, w.cfg.AssistantName+": "+a.Text); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	w.logger.Info("ipc message sent",
		logger.Field{Key: "chat_jid", Value: a.ChatJID},
		logger.Field{Key: "source_group", Value: sourceGroup})
	return nil
}
