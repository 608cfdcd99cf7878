package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/scheduler"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

// goalWithTasks is the dashboard read model: a goal plus its linked tasks.
type goalWithTasks struct {
	*store.Goal
	Tasks []goalTask `json:"tasks"`
}

type goalTask struct {
	ID            string             `json:"id"`
	Prompt        string             `json:"prompt"`
	ScheduleType  store.ScheduleType `json:"schedule_type"`
	ScheduleValue string             `json:"schedule_value"`
	Status        store.TaskStatus   `json:"status"`
	NextRun       *string            `json:"next_run"`
	LastRun       *string            `json:"last_run"`
	LastResult    *string            `json:"last_result"`
}

func (s *Server) getGoals(w http.ResponseWriter) {
	goals, err := s.deps.Store.AllGoals()
	if err != nil {
		s.logger.Error("failed to load goals", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}

	out := make([]goalWithTasks, 0, len(goals))
	for _, g := range goals {
		tasks, err := s.deps.Store.TasksForGoal(g.ID)
		if err != nil {
			s.logger.Error("failed to load goal tasks", err,
				logger.Field{Key: "goal_id", Value: g.ID})
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
			return
		}
		gt := goalWithTasks{Goal: g, Tasks: make([]goalTask, 0, len(tasks))}
		for _, t := range tasks {
			gt.Tasks = append(gt.Tasks, goalTask{
				ID:            t.ID,
				Prompt:        t.Prompt,
				ScheduleType:  t.ScheduleType,
				ScheduleValue: t.ScheduleValue,
				Status:        t.Status,
				NextRun:       t.NextRun,
				LastRun:       t.LastRun,
				LastResult:    t.LastResult,
			})
		}
		out = append(out, gt)
	}
	writeJSON(w, http.StatusOK, out)
}

// postGoal creates a goal and schedules two tasks against the main group:
// an immediate one-shot that breaks the goal into linked tasks, and a
// recurring review whose cadence follows the goal's priority.
func (s *Server) postGoal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		Deadline    string `json:"deadline"`
		ProjectID   string `json:"project_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	title := strings.TrimSpace(body.Title)
	if title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "title is required"})
		return
	}

	now := store.Now()
	goalID := "goal-" + uuid.NewString()
	priority := body.Priority
	if priority != "high" && priority != "medium" && priority != "low" {
		priority = "medium"
	}
	var description *string
	if d := strings.TrimSpace(body.Description); d != "" {
		description = &d
	}
	var deadline *string
	if body.Deadline != "" {
		deadline = &body.Deadline
	}
	var projectID *string
	if p := strings.TrimSpace(body.ProjectID); p != "" {
		projectID = &p
	}

	if err := s.deps.Store.CreateGoal(&store.Goal{
		ID:          goalID,
		GroupFolder: s.cfg.MainFolder,
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		Status:      "active",
		Priority:    priority,
		Progress:    0,
		Deadline:    deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		s.logger.Error("failed to create goal", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}

	mainJID := s.mainGroupJID()
	if mainJID != "" {
		s.scheduleGoalTasks(goalID, title, description, priority, mainJID, now)
	} else {
		s.logger.Warn("goal created but no main group found for breakdown task",
			logger.Field{Key: "goal_id", Value: goalID})
	}

	s.refreshDashboard()
	if err := s.deps.Snapshots.WriteGoals(s.cfg.MainFolder); err != nil {
		s.logger.Error("failed to write goals snapshot", err)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": goalID, "success": true})
}

func (s *Server) scheduleGoalTasks(goalID, title string, description *string, priority, mainJID, now string) {
	breakdownID := "task-" + uuid.NewString()
	parts := []string{
		fmt.Sprintf("New goal created from dashboard. Goal ID: %s", goalID),
		fmt.Sprintf("Title: '%s'.", title),
	}
	if description != nil {
		parts = append(parts, fmt.Sprintf("Description: '%s'.", *description))
	}
	parts = append(parts,
		fmt.Sprintf("Priority: %s.", priority),
		fmt.Sprintf("Break this goal into actionable tasks and schedule them. IMPORTANT: Every task you create with schedule_task MUST include goal_id=%q so they are linked to this goal.", goalID),
		fmt.Sprintf("After scheduling all tasks, call update_goal with goal_id=%q to set progress to an appropriate initial value (e.g. 10 for planned). When the final task completes, it should call update_goal to set status=\"completed\" and progress=100.", goalID),
	)

	breakdownTimeout := int64(600000)
	if err := s.deps.Store.CreateTask(&store.ScheduledTask{
		ID:            breakdownID,
		GroupFolder:   s.cfg.MainFolder,
		ChatJID:       mainJID,
		Prompt:        strings.Join(parts, " "),
		ScheduleType:  store.ScheduleOnce,
		ScheduleValue: now,
		ContextMode:   store.ContextGroup,
		NextRun:       &now,
		Status:        store.TaskActive,
		CreatedAt:     now,
		GoalID:        &goalID,
		TimeoutMs:     &breakdownTimeout,
	}); err != nil {
		s.logger.Error("failed to create goal breakdown task", err,
			logger.Field{Key: "goal_id", Value: goalID})
		return
	}

	reviewCron := "0 9 * * 1"
	switch priority {
	case "high":
		reviewCron = "0 9 * * *"
	case "medium":
		reviewCron = "0 9 */3 * *"
	}
	reviewID := "task-" + uuid.NewString()
	reviewPrompt := fmt.Sprintf(
		"Review goal %s: '%s'. Read task results for all linked tasks (goal_id=%s). "+
			"Assess overall progress. Update progress with update_goal. If tasks are failing or stalled, replan. "+
			"If you're blocked, use request_help. Report significant progress to the user via send_message.",
		goalID, title, goalID)

	var reviewNext *string
	if next, err := scheduler.InitialNextRun(store.ScheduleCron, reviewCron, time.Now(), s.cfg.Timezone); err == nil {
		reviewNext = &next
	}
	if err := s.deps.Store.CreateTask(&store.ScheduledTask{
		ID:            reviewID,
		GroupFolder:   s.cfg.MainFolder,
		ChatJID:       mainJID,
		Prompt:        reviewPrompt,
		ScheduleType:  store.ScheduleCron,
		ScheduleValue: reviewCron,
		ContextMode:   store.ContextGroup,
		NextRun:       reviewNext,
		Status:        store.TaskActive,
		CreatedAt:     now,
		GoalID:        &goalID,
	}); err != nil {
		s.logger.Error("failed to create goal review task", err,
			logger.Field{Key: "goal_id", Value: goalID})
		return
	}

	s.logger.Info("goal created with breakdown and review tasks",
		logger.Field{Key: "goal_id", Value: goalID},
		logger.Field{Key: "breakdown_task_id", Value: breakdownID},
		logger.Field{Key: "review_task_id", Value: reviewID})
}

func (s *Server) mainGroupJID() string {
	for jid, g := range s.deps.Groups() {
		if g.Folder == s.cfg.MainFolder {
			return jid
		}
	}
	return ""
}
