// Package scheduler polls the store for due tasks and hands them to the
// group queue for execution. The poll loop only discovers work; actual
// runs are serialized per group by the queue.
package scheduler

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/aatumaykin/nanoclaw/internal/container"
	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/queue"
	"github.com/aatumaykin/nanoclaw/internal/snapshot"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

// AgentRunner executes one agent invocation in a container.
type AgentRunner interface {
	Run(ctx context.Context, group *store.RegisteredGroup, input container.AgentInput, onStart container.StartedFn, timeout time.Duration) (*container.AgentOutput, error)
}

// Deps are the collaborators the scheduler drives.
type Deps struct {
	Store       *store.Store
	Queue       *queue.GroupQueue
	Snapshots   *snapshot.Writer
	Runner      AgentRunner
	SendMessage func(ctx context.Context, jid, text string) error
	// Groups returns the registered groups keyed by chat JID.
	Groups func() map[string]*store.RegisteredGroup
	// Session returns a group's live session id, or "" when none exists.
	Session func(groupFolder string) string
}

// Config tunes the scheduler.
type Config struct {
	AssistantName string
	Timezone      *time.Location
	PollInterval  time.Duration
}

// Scheduler is the due-task poll loop.
type Scheduler struct {
	deps    Deps
	cfg     Config
	logger  *logger.Logger
	metrics *PrometheusMetrics
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Scheduler. metrics may be nil.
func New(deps Deps, cfg Config, log *logger.Logger, metrics *PrometheusMetrics) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	return &Scheduler{
		deps:    deps,
		cfg:     cfg,
		logger:  log,
		metrics: metrics,
	}
}

// Start launches the poll loop. It returns immediately.
func (s *Scheduler) Start() {
	if s.cancel != nil {
		s.logger.Debug("scheduler already running, skipping duplicate start")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.logger.Info("scheduler loop started",
		logger.Field{Key: "poll_interval", Value: s.cfg.PollInterval.String()})

	go s.loop(ctx)
}

// Stop halts the poll loop. Runs already handed to the queue continue.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.tick()
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// tick finds due tasks and enqueues each on its group's queue.
func (s *Scheduler) tick() {
	due, err := s.deps.Store.DueTasks(store.Now())
	if err != nil {
		s.logger.Error("failed to query due tasks", err)
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Info("found due tasks", logger.Field{Key: "count", Value: len(due)})
	if s.metrics != nil {
		s.metrics.AddDueTasks(len(due))
	}

	for _, t := range due {
		// Re-check under the current row in case the task was paused or
		// cancelled since the query.
		task, err := s.deps.Store.TaskByID(t.ID)
		if err != nil {
			s.logger.Error("failed to re-fetch task", err,
				logger.Field{Key: "task_id", Value: t.ID})
			continue
		}
		if task == nil || task.Status != store.TaskActive {
			continue
		}

		s.deps.Queue.EnqueueTask(task.ChatJID, task.ID, func(ctx context.Context) error {
			s.runTask(ctx, task)
			return nil
		})
	}
}

// runTask executes one task end to end: snapshot refresh, container run,
// reply delivery, run log, reschedule, and child-task chaining. Failures
// are recorded in the run log rather than returned, so the queue never
// retries a run the log already accounts for.
func (s *Scheduler) runTask(ctx context.Context, task *store.ScheduledTask) {
	start := time.Now()
	s.logger.Info("running scheduled task",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "group", Value: task.GroupFolder})

	group := s.groupByFolder(task.GroupFolder)
	if group == nil {
		s.logger.Error("group not found for task", nil,
			logger.Field{Key: "task_id", Value: task.ID},
			logger.Field{Key: "group", Value: task.GroupFolder})
		errText := "Group not found: " + task.GroupFolder
		s.logRun(task.ID, start, nil, &errText)
		return
	}

	// Refresh the snapshots the agent reads before it starts.
	if err := s.deps.Snapshots.WriteTasks(task.GroupFolder); err != nil {
		s.logger.Error("failed to write tasks snapshot", err,
			logger.Field{Key: "group", Value: task.GroupFolder})
	}
	if err := s.deps.Snapshots.WriteHelpRequests(task.GroupFolder); err != nil {
		s.logger.Error("failed to write help requests snapshot", err,
			logger.Field{Key: "group", Value: task.GroupFolder})
	}

	sessionID := ""
	if task.ContextMode == store.ContextGroup {
		sessionID = s.deps.Session(task.GroupFolder)
	}

	var result, errText *string

	output, err := s.deps.Runner.Run(ctx, group, container.AgentInput{
		Prompt:      task.Prompt,
		SessionID:   sessionID,
		GroupFolder: task.GroupFolder,
		ChatJID:     task.ChatJID,
		IsMain:      s.deps.Snapshots.IsMain(task.GroupFolder),
	}, func(handle *container.Handle, containerName string) {
		s.deps.Queue.RegisterProcess(task.ChatJID, handle, containerName)
	}, s.effectiveTimeout(task, group))

	switch {
	case err != nil:
		msg := err.Error()
		errText = &msg
		s.logger.Error("task failed", err, logger.Field{Key: "task_id", Value: task.ID})
	case output.Status == "error":
		msg := output.Error
		if msg == "" {
			msg = "Unknown error"
		}
		errText = &msg
	case output.Result != nil:
		if output.Result.OutputType == "message" && output.Result.UserMessage != "" {
			text := s.cfg.AssistantName + ": " + output.Result.UserMessage
			if err := s.deps.SendMessage(ctx, task.ChatJID, text); err != nil {
				s.logger.Error("failed to send task result", err,
					logger.Field{Key: "task_id", Value: task.ID})
			}
		}
		if output.Result.UserMessage != "" {
			result = &output.Result.UserMessage
		} else if output.Result.InternalLog != "" {
			result = &output.Result.InternalLog
		}
	}

	if errText == nil {
		s.logger.Info("task completed",
			logger.Field{Key: "task_id", Value: task.ID},
			logger.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()})
	}

	s.logRun(task.ID, start, result, errText)
	if s.metrics != nil {
		status := "success"
		if errText != nil {
			status = "error"
		}
		s.metrics.RecordRun(status, time.Since(start))
	}

	nextRun, err := nextRunAfter(task, time.Now(), s.cfg.Timezone)
	if err != nil {
		s.logger.Error("failed to compute next run", err,
			logger.Field{Key: "task_id", Value: task.ID})
	}

	summary := "Completed"
	if errText != nil {
		summary = "Error: " + *errText
	} else if result != nil {
		summary = truncate(*result, 200)
	}
	if err := s.deps.Store.UpdateTaskAfterRun(task.ID, nextRun, summary); err != nil {
		s.logger.Error("failed to update task after run", err,
			logger.Field{Key: "task_id", Value: task.ID})
	}

	if errText == nil {
		s.activateChildren(task.ID, summary)
	}
}

// activateChildren wakes tasks chained onto a completed parent. Each child
// gets the parent's result prepended to its prompt and an immediate
// next_run.
func (s *Scheduler) activateChildren(parentID, parentSummary string) {
	children, err := s.deps.Store.ChildTasks(parentID)
	if err != nil {
		s.logger.Error("failed to load child tasks", err,
			logger.Field{Key: "task_id", Value: parentID})
		return
	}
	if len(children) == 0 {
		return
	}

	parentResultText := parentSummary
	if run, err := s.deps.Store.LatestRunResult(parentID); err == nil && run != nil && run.Result != nil {
		parentResultText = *run.Result
	}

	for _, child := range children {
		prompt := "Previous task result:\n" + parentResultText + "\n\n---\nYour task: " + child.Prompt
		now := store.Now()
		err := s.deps.Store.UpdateTask(child.ID, store.TaskUpdate{
			Prompt:     &prompt,
			NextRun:    &now,
			SetNextRun: true,
		})
		if err != nil {
			s.logger.Error("failed to activate child task", err,
				logger.Field{Key: "child_id", Value: child.ID})
			continue
		}
		s.logger.Info("task chaining: activated child task",
			logger.Field{Key: "parent_id", Value: parentID},
			logger.Field{Key: "child_id", Value: child.ID})
	}
}

func (s *Scheduler) logRun(taskID string, start time.Time, result, errText *string) {
	status := "success"
	if errText != nil {
		status = "error"
	}
	err := s.deps.Store.LogTaskRun(&store.TaskRunLog{
		TaskID:     taskID,
		RunAt:      store.Now(),
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Result:     result,
		Error:      errText,
	})
	if err != nil {
		s.logger.Error("failed to log task run", err,
			logger.Field{Key: "task_id", Value: taskID})
	}
}

// effectiveTimeout resolves the run timeout: task override first, then the
// group's container config. Zero defers to the runner's default.
func (s *Scheduler) effectiveTimeout(task *store.ScheduledTask, group *store.RegisteredGroup) time.Duration {
	if task.TimeoutMs != nil && *task.TimeoutMs > 0 {
		return time.Duration(*task.TimeoutMs) * time.Millisecond
	}
	if group.ContainerConfig != nil && group.ContainerConfig.TimeoutMs != nil && *group.ContainerConfig.TimeoutMs > 0 {
		return time.Duration(*group.ContainerConfig.TimeoutMs) * time.Millisecond
	}
	return 0
}

func (s *Scheduler) groupByFolder(folder string) *store.RegisteredGroup {
	for _, g := range s.deps.Groups() {
		if g.Folder == folder {
			return g
		}
	}
	return nil
}

// truncate cuts text to at most max bytes on a rune boundary.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	return text[:max]
}
