package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aatumaykin/nanoclaw/internal/api"
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

const metricsNamespace = "nanoclaw"

// dashboardRefreshInterval is how often the main group's dashboard data
// files are rebuilt, independent of write-through updates.
const dashboardRefreshInterval = 60 * time.Second

// Initialize builds and starts all components.
func (a *App) Initialize(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	ws := a.config.Workspace

	tz, err := time.LoadLocation(ws.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", ws.Timezone, err)
	}

	st, err := store.Open(ws.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st

	a.snapshots = snapshot.NewWriter(st, ws.DataDir, ws.GroupsDir, ws.MainGroupFolder, a.logger)

	registry := prometheus.NewRegistry()
	queueMetrics := queue.InitPrometheusMetrics(metricsNamespace, registry)
	schedMetrics := scheduler.InitPrometheusMetrics(metricsNamespace, registry)

	a.queue = queue.New(queue.Config{
		MaxConcurrentGroups: a.config.Queue.MaxConcurrentGroups,
		RetryMaxAttempts:    a.config.Queue.RetryMaxAttempts,
		RetryInitial:        time.Duration(a.config.Queue.RetryInitialMs) * time.Millisecond,
		RetryMax:            time.Duration(a.config.Queue.RetryMaxMs) * time.Millisecond,
	}, a.logger, queueMetrics)
	a.queue.SetStatusCallback(func(group string, working bool) {
		if err := a.snapshots.WriteAgentStatus(group, working); err != nil {
			a.logger.Error("failed to write agent status", err,
				logger.Field{Key: "group", Value: group})
		}
	})

	a.runner, err = container.NewRunner(container.Config{
		Image:          a.config.Container.Image,
		GroupsDir:      ws.GroupsDir,
		DataDir:        ws.DataDir,
		MemoryLimit:    a.config.Container.MemoryLimit,
		CPULimit:       a.config.Container.CPULimit,
		PidsLimit:      a.config.Container.PidsLimit,
		DefaultTimeout: time.Duration(a.config.Scheduler.DefaultTimeoutMs) * time.Millisecond,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize container runner: %w", err)
	}
	a.runner.CleanupStale(a.ctx)

	a.router, err = router.NewRouter(router.Deps{
		Store:       st,
		Queue:       a.queue,
		Snapshots:   a.snapshots,
		Runner:      a.runner,
		SendMessage: a.sendMessage,
		SetTyping:   a.setTyping,
	}, router.Config{
		AssistantName:  ws.AssistantName,
		MainFolder:     ws.MainGroupFolder,
		TriggerPattern: ws.TriggerPattern,
		GroupsDir:      ws.GroupsDir,
		PollInterval:   time.Duration(a.config.Router.PollIntervalMs) * time.Millisecond,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}
	if err := a.router.LoadState(); err != nil {
		return fmt.Errorf("failed to load router state: %w", err)
	}

	a.scheduler = scheduler.New(scheduler.Deps{
		Store:       st,
		Queue:       a.queue,
		Snapshots:   a.snapshots,
		Runner:      a.runner,
		SendMessage: a.sendMessage,
		Groups:      a.router.Groups,
		Session:     a.router.Session,
	}, scheduler.Config{
		AssistantName: ws.AssistantName,
		Timezone:      tz,
		PollInterval:  time.Duration(a.config.Scheduler.PollIntervalMs) * time.Millisecond,
	}, a.logger, schedMetrics)

	a.watcher = ipc.NewWatcher(ipc.Deps{
		Store:         st,
		Snapshots:     a.snapshots,
		SendMessage:   a.sendMessage,
		Groups:        a.router.Groups,
		RegisterGroup: a.router.RegisterGroup,
		SyncGroups:    a.syncGroups,
	}, ipc.Config{
		DataDir:       ws.DataDir,
		GroupsDir:     ws.GroupsDir,
		MainFolder:    ws.MainGroupFolder,
		AssistantName: ws.AssistantName,
		Timezone:      tz,
		PollInterval:  time.Duration(a.config.IPC.PollIntervalMs) * time.Millisecond,
	}, a.logger)

	a.apiServer = api.New(api.Config{
		Enabled:    a.config.API.Enabled,
		ListenAddr: fmt.Sprintf(":%d", a.config.API.Port),
		GroupsDir:  ws.GroupsDir,
		MainFolder: ws.MainGroupFolder,
		Timezone:   tz,
	}, api.Deps{
		Store:     st,
		Snapshots: a.snapshots,
		Groups:    a.router.Groups,
		Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, a.logger)

	if a.config.Telegram.Enabled {
		a.transport = telegram.New(telegram.Config{
			Enabled: true,
			Token:   a.config.Telegram.Token,
		}, telegram.Deps{
			Store:  st,
			Groups: a.router.Groups,
		}, a.logger)
		if err := a.transport.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start telegram connector: %w", err)
		}
	} else {
		a.logger.Warn("telegram transport is disabled")
	}

	a.router.Start()
	a.router.RecoverPending()
	a.scheduler.Start()
	if err := a.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start ipc watcher: %w", err)
	}
	if err := a.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start admin api: %w", err)
	}

	go a.dashboardLoop(a.ctx)

	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	return nil
}

// syncGroups refreshes group metadata from the transport. Without a
// transport there is nothing to refresh.
func (a *App) syncGroups(ctx context.Context) error {
	if a.transport == nil {
		return nil
	}
	return a.transport.SyncGroupMetadata(ctx, true)
}

func (a *App) dashboardLoop(ctx context.Context) {
	refresh := func() {
		if err := a.snapshots.WriteDashboard(a.config.Workspace.MainGroupFolder); err != nil {
			a.logger.Error("dashboard refresh failed", err)
		}
	}
	refresh()

	ticker := time.NewTicker(dashboardRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
