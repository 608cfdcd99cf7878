package ipc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/scheduler"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

// maxTaskTimeout caps the per-task timeout an agent may request.
const maxTaskTimeout = 900 * time.Second

// dispatch routes one structured action by its type discriminator.
// Unauthorized and malformed actions are logged and consumed; only
// infrastructure failures bubble up to quarantine the file.
func (w *Watcher) dispatch(ctx context.Context, a *Action, sourceGroup string, isMain bool) error {
	switch a.Type {
	case "schedule_task":
		return w.scheduleTask(a, sourceGroup, isMain)
	case "pause_task":
		return w.setTaskStatus(a, sourceGroup, isMain, store.TaskPaused, "paused")
	case "resume_task":
		return w.setTaskStatus(a, sourceGroup, isMain, store.TaskActive, "resumed")
	case "cancel_task":
		return w.cancelTask(a, sourceGroup, isMain)
	case "create_goal":
		return w.createGoal(a, sourceGroup)
	case "update_goal":
		return w.updateGoal(a, sourceGroup, isMain)
	case "create_project":
		return w.createProject(a, sourceGroup)
	case "update_project":
		return w.updateProject(a, sourceGroup, isMain)
	case "request_help":
		return w.requestHelp(ctx, a, sourceGroup)
	case "register_group":
		return w.registerGroup(a, sourceGroup, isMain)
	case "refresh_groups":
		return w.refreshGroups(ctx, sourceGroup, isMain)
	default:
		w.logger.Warn("unknown ipc action type",
			logger.Field{Key: "type", Value: a.Type},
			logger.Field{Key: "source_group", Value: sourceGroup})
		return nil
	}
}

func (w *Watcher) scheduleTask(a *Action, sourceGroup string, isMain bool) error {
	if a.Prompt == "" || a.ScheduleType == "" || a.ScheduleValue == "" || a.TargetJID == "" {
		w.logger.Warn("incomplete schedule_task request",
			logger.Field{Key: "source_group", Value: sourceGroup})
		return nil
	}

	target := w.deps.Groups()[a.TargetJID]
	if target == nil {
		w.logger.Warn("cannot schedule task: target group not registered",
			logger.Field{Key: "target_jid", Value: a.TargetJID})
		return nil
	}
	if !isMain && target.Folder != sourceGroup {
		w.logger.Warn("unauthorized schedule_task attempt blocked",
			logger.Field{Key: "source_group", Value: sourceGroup},
			logger.Field{Key: "target_folder", Value: target.Folder})
		return nil
	}

	scheduleType := store.ScheduleType(a.ScheduleType)
	if err := scheduler.ValidateSchedule(scheduleType, a.ScheduleValue); err != nil {
		w.logger.Warn("invalid schedule rejected",
			logger.Field{Key: "schedule_value", Value: a.ScheduleValue},
			logger.Field{Key: "error", Value: err.Error()})
		return nil
	}

	// Chained tasks stay dormant until their parent completes.
	var nextRun *string
	if a.DependsOn == nil {
		initial, err := scheduler.InitialNextRun(scheduleType, a.ScheduleValue, time.Now(), w.cfg.Timezone)
		if err != nil {
			return fmt.Errorf("compute next run: %w", err)
		}
		nextRun = &initial
	}

	contextMode := store.ContextIsolated
	if a.ContextMode == string(store.ContextGroup) {
		contextMode = store.ContextGroup
	}

	task := &store.ScheduledTask{
		ID:            "task-" + uuid.NewString(),
		GroupFolder:   target.Folder,
		ChatJID:       a.TargetJID,
		Prompt:        a.Prompt,
		ScheduleType:  scheduleType,
		ScheduleValue: a.ScheduleValue,
		ContextMode:   contextMode,
		NextRun:       nextRun,
		Status:        store.TaskActive,
		CreatedAt:     store.Now(),
		GoalID:        a.GoalRef,
		DependsOn:     a.DependsOn,
		TimeoutMs:     capTimeout(a.TimeoutSec),
		ParentTaskID:  a.ParentTaskID,
	}
	if err := w.deps.Store.CreateTask(task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	w.logger.Info("task created via ipc",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "source_group", Value: sourceGroup},
		logger.Field{Key: "target_folder", Value: target.Folder},
		logger.Field{Key: "context_mode", Value: string(contextMode)})
	w.writeDashboard(target.Folder)
	return nil
}

// capTimeout converts a requested timeout in seconds to stored
// milliseconds, clamped to the system ceiling. Zero or negative means no
// override.
func capTimeout(seconds int64) *int64 {
	if seconds <= 0 {
		return nil
	}
	d := time.Duration(seconds) * time.Second
	if d > maxTaskTimeout {
		d = maxTaskTimeout
	}
	ms := d.Milliseconds()
	return &ms
}

// authorizedTask loads a task and checks the source group may act on it.
func (w *Watcher) authorizedTask(a *Action, sourceGroup string, isMain bool, verb string) (*store.ScheduledTask, error) {
	if a.TaskID == "" {
		return nil, nil
	}
	task, err := w.deps.Store.TaskByID(a.TaskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task == nil || (!isMain && task.GroupFolder != sourceGroup) {
		w.logger.Warn("unauthorized task "+verb+" attempt",
			logger.Field{Key: "task_id", Value: a.TaskID},
			logger.Field{Key: "source_group", Value: sourceGroup})
		return nil, nil
	}
	return task, nil
}

func (w *Watcher) setTaskStatus(a *Action, sourceGroup string, isMain bool, status store.TaskStatus, verb string) error {
	task, err := w.authorizedTask(a, sourceGroup, isMain, verb)
	if err != nil || task == nil {
		return err
	}
	if err := w.deps.Store.UpdateTask(task.ID, store.TaskUpdate{Status: &status}); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	w.logger.Info("task "+verb+" via ipc",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "source_group", Value: sourceGroup})
	w.writeDashboard(task.GroupFolder)
	return nil
}

func (w *Watcher) cancelTask(a *Action, sourceGroup string, isMain bool) error {
	task, err := w.authorizedTask(a, sourceGroup, isMain, "cancel")
	if err != nil || task == nil {
		return err
	}
	if err := w.deps.Store.DeleteTask(task.ID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	w.logger.Info("task cancelled via ipc",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "source_group", Value: sourceGroup})
	w.writeDashboard(task.GroupFolder)
	return nil
}

func (w *Watcher) createGoal(a *Action, sourceGroup string) error {
	if a.ID == "" || a.Title == "" {
		return nil
	}
	now := store.Now()
	priority := a.Priority
	if priority != "high" && priority != "medium" && priority != "low" {
		priority = "medium"
	}
	goal := &store.Goal{
		ID:          a.ID,
		GroupFolder: sourceGroup,
		ProjectID:   a.ProjectRef,
		Title:       a.Title,
		Description: a.Description,
		Status:      "active",
		Priority:    priority,
		Deadline:    a.Deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.deps.Store.CreateGoal(goal); err != nil {
		return fmt.Errorf("create goal: %w", err)
	}
	if err := w.deps.Snapshots.WriteGoals(sourceGroup); err != nil {
		w.logger.Error("failed to write goals snapshot", err,
			logger.Field{Key: "group", Value: sourceGroup})
	}
	w.logger.Info("goal created via ipc",
		logger.Field{Key: "goal_id", Value: a.ID},
		logger.Field{Key: "source_group", Value: sourceGroup})
	w.writeDashboard(sourceGroup)
	return nil
}

func (w *Watcher) updateGoal(a *Action, sourceGroup string, isMain bool) error {
	if a.GoalID == "" {
		return nil
	}
	goal, err := w.deps.Store.GoalByID(a.GoalID)
	if err != nil {
		return fmt.Errorf("load goal: %w", err)
	}
	if goal == nil || (!isMain && goal.GroupFolder != sourceGroup) {
		w.logger.Warn("unauthorized goal update attempt",
			logger.Field{Key: "goal_id", Value: a.GoalID},
			logger.Field{Key: "source_group", Value: sourceGroup})
		return nil
	}

	var update store.GoalUpdate
	switch a.Status {
	case "active", "paused", "completed", "cancelled":
		update.Status = &a.Status
	}
	switch a.Priority {
	case "high", "medium", "low":
		update.Priority = &a.Priority
	}
	update.Progress = a.Progress
	update.Description = a.Description
	update.Deadline = a.Deadline

	if err := w.deps.Store.UpdateGoal(a.GoalID, update); err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if err := w.deps.Snapshots.WriteGoals(sourceGroup); err != nil {
		w.logger.Error("failed to write goals snapshot", err,
			logger.Field{Key: "group", Value: sourceGroup})
	}
	w.logger.Info("goal updated via ipc",
		logger.Field{Key: "goal_id", Value: a.GoalID},
		logger.Field{Key: "source_group", Value: sourceGroup})
	w.writeDashboard(goal.GroupFolder)
	return nil
}

func (w *Watcher) createProject(a *Action, sourceGroup string) error {
	if a.ID == "" || a.Name == "" {
		return nil
	}
	now := store.Now()
	project := &store.Project{
		ID:          a.ID,
		GroupFolder: sourceGroup,
		Name:        a.Name,
		Description: a.Description,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.deps.Store.CreateProject(project); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	if err := w.deps.Snapshots.WriteProjects(sourceGroup); err != nil {
		w.logger.Error("failed to write projects snapshot", err,
			logger.Field{Key: "group", Value: sourceGroup})
	}
	w.logger.Info("project created via ipc",
		logger.Field{Key: "project_id", Value: a.ID},
		logger.Field{Key: "source_group", Value: sourceGroup})
	w.writeDashboard(sourceGroup)
	return nil
}

func (w *Watcher) updateProject(a *Action, sourceGroup string, isMain bool) error {
	if a.ProjectID == "" {
		return nil
	}
	project, err := w.deps.Store.ProjectByID(a.ProjectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if project == nil || (!isMain && project.GroupFolder != sourceGroup) {
		w.logger.Warn("unauthorized project update attempt",
			logger.Field{Key: "project_id", Value: a.ProjectID},
			logger.Field{Key: "source_group", Value: sourceGroup})
		return nil
	}

	var update store.ProjectUpdate
	if a.Name != "" {
		update.Name = &a.Name
	}
	update.Description = a.Description
	switch a.Status {
	case "active", "paused", "completed", "archived":
		update.Status = &a.Status
	}

	if err := w.deps.Store.UpdateProject(a.ProjectID, update); err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if err := w.deps.Snapshots.WriteProjects(sourceGroup); err != nil {
		w.logger.Error("failed to write projects snapshot", err,
			logger.Field{Key: "group", Value: sourceGroup})
	}
	w.logger.Info("project updated via ipc",
		logger.Field{Key: "project_id", Value: a.ProjectID},
		logger.Field{Key: "source_group", Value: sourceGroup})
	w.writeDashboard(project.GroupFolder)
	return nil
}

func (w *Watcher) requestHelp(ctx context.Context, a *Action, sourceGroup string) error {
	if a.Title == "" || a.Description == nil || *a.Description == "" {
		return nil
	}
	requestType := a.RequestType
	switch requestType {
	case "blocker", "question", "access", "integration":
	default:
		requestType = "question"
	}
	now := store.Now()
	req := &store.HelpRequest{
		ID:          "help-" + uuid.NewString(),
		GroupFolder: sourceGroup,
		ProjectID:   a.ProjectRef,
		GoalID:      a.GoalRef,
		TaskID:      a.TaskRef,
		Title:       a.Title,
		Description: *a.Description,
		RequestType: requestType,
		Status:      "open",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.deps.Store.CreateHelpRequest(req); err != nil {
		return fmt.Errorf("create help request: %w", err)
	}
	w.writeDashboard(sourceGroup)

	// Notify the group's chat so a human sees the escalation promptly.
	for jid, g := range w.deps.Groups() {
		if g.Folder != sourceGroup {
			continue
		}
		text := fmt.Sprintf("%s: I need your help: %s\n\n%s\n\nPlease respond via the dashboard (Requests tab).",
			w.cfg.AssistantName, a.Title, *a.Description)
		if err := w.deps.SendMessage(ctx, jid, text); err != nil {
			w.logger.Error("failed to send help request notification", err,
				logger.Field{Key: "chat_jid", Value: jid})
		}
		break
	}

	w.logger.Info("help request created via ipc",
		logger.Field{Key: "help_id", Value: req.ID},
		logger.Field{Key: "source_group", Value: sourceGroup},
		logger.Field{Key: "type", Value: requestType})
	return nil
}

func (w *Watcher) registerGroup(a *Action, sourceGroup string, isMain bool) error {
	if !isMain {
		w.logger.Warn("unauthorized register_group attempt blocked",
			logger.Field{Key: "source_group", Value: sourceGroup})
		return nil
	}
	if a.JID == "" || a.Name == "" || a.Folder == "" || a.Trigger == "" {
		w.logger.Warn("invalid register_group request, missing required fields",
			logger.Field{Key: "source_group", Value: sourceGroup})
		return nil
	}

	requiresTrigger := true
	if a.RequiresTrigger != nil {
		requiresTrigger = *a.RequiresTrigger
	}
	group := &store.RegisteredGroup{
		JID:             a.JID,
		Name:            a.Name,
		Folder:          a.Folder,
		TriggerPattern:  a.Trigger,
		AddedAt:         store.Now(),
		ContainerConfig: a.ContainerConfig,
		RequiresTrigger: requiresTrigger,
	}
	if err := w.deps.RegisterGroup(group); err != nil {
		return fmt.Errorf("register group: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(w.cfg.GroupsDir, a.Folder), 0755); err != nil {
		return fmt.Errorf("create group folder: %w", err)
	}
	w.logger.Info("group registered via ipc",
		logger.Field{Key: "jid", Value: a.JID},
		logger.Field{Key: "folder", Value: a.Folder})
	return nil
}

func (w *Watcher) refreshGroups(ctx context.Context, sourceGroup string, isMain bool) error {
	if !isMain {
		w.logger.Warn("unauthorized refresh_groups attempt blocked",
			logger.Field{Key: "source_group", Value: sourceGroup})
		return nil
	}
	w.logger.Info("group metadata refresh requested via ipc",
		logger.Field{Key: "source_group", Value: sourceGroup})
	if w.deps.SyncGroups != nil {
		if err := w.deps.SyncGroups(ctx); err != nil {
			w.logger.Error("failed to sync group metadata", err)
		}
	}
	if err := w.deps.Snapshots.WriteGroups(sourceGroup, w.deps.Groups()); err != nil {
		w.logger.Error("failed to write groups snapshot", err,
			logger.Field{Key: "group", Value: sourceGroup})
	}
	return nil
}

func (w *Watcher) writeDashboard(groupFolder string) {
	if err := w.deps.Snapshots.WriteDashboard(groupFolder); err != nil {
		w.logger.Error("failed to write dashboard data", err,
			logger.Field{Key: "group", Value: groupFolder})
	}
}
