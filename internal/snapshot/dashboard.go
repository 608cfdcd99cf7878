package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aatumaykin/nanoclaw/internal/store"
)

type dashboardTask struct {
	ID            string             `json:"id"`
	Prompt        string             `json:"prompt"`
	ScheduleType  store.ScheduleType `json:"schedule_type"`
	ScheduleValue string             `json:"schedule_value"`
	Status        store.TaskStatus   `json:"status"`
	NextRun       *string            `json:"next_run"`
	LastRun       *string            `json:"last_run"`
	LastResult    *string            `json:"last_result"`
	CreatedAt     string             `json:"created_at,omitempty"`
	GoalID        *string            `json:"goal_id,omitempty"`
	Subtasks      []dashboardTask    `json:"subtasks,omitempty"`
}

type dashboardGoal struct {
	*store.Goal
	Tasks []dashboardTask `json:"tasks"`
}

type dashboardProject struct {
	*store.Project
	Goals []dashboardGoal `json:"goals"`
}

type feedEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
	Details   string `json:"details"`
}

// WriteDashboard regenerates the per-group dashboard data files: the
// project hierarchy, goal list, recurring tasks, activity feed, and
// pending help requests.
func (w *Writer) WriteDashboard(groupFolder string) error {
	projects, err := w.store.AllProjects()
	if err != nil {
		return err
	}
	projects = filterProjects(projects, groupFolder)

	goals, err := w.store.GoalsForGroup(groupFolder)
	if err != nil {
		return err
	}
	tasks, err := w.store.TasksForGroup(groupFolder)
	if err != nil {
		return err
	}
	helpRequests, err := w.store.AllHelpRequests()
	if err != nil {
		return err
	}
	if helpRequests == nil {
		helpRequests = []*store.HelpRequest{}
	}

	dir := w.groupDir(groupFolder)
	if err := writeJSON(dir, "projects.json", buildProjectHierarchy(projects, goals, tasks)); err != nil {
		return err
	}
	if err := writeJSON(dir, "goals.json", buildGoalList(goals, tasks)); err != nil {
		return err
	}
	if err := writeJSON(dir, "recurring-tasks.json", buildRecurringTasks(tasks)); err != nil {
		return err
	}
	if err := writeJSON(dir, "activity-feed.json", w.buildActivityFeed(dir, projects, goals, tasks)); err != nil {
		return err
	}
	return writeJSON(dir, "requests.json", helpRequests)
}

func filterProjects(projects []*store.Project, groupFolder string) []*store.Project {
	out := projects[:0]
	for _, p := range projects {
		if p.GroupFolder == groupFolder {
			out = append(out, p)
		}
	}
	return out
}

type projectHierarchy struct {
	Projects      []dashboardProject `json:"projects"`
	OrphanedGoals []dashboardGoal    `json:"orphanedGoals"`
}

// buildProjectHierarchy nests project -> goals -> tasks -> subtasks.
// Goals without a project land in orphanedGoals so they stay visible.
func buildProjectHierarchy(projects []*store.Project, goals []*store.Goal, tasks []*store.ScheduledTask) projectHierarchy {
	h := projectHierarchy{
		Projects:      make([]dashboardProject, 0, len(projects)),
		OrphanedGoals: []dashboardGoal{},
	}

	for _, p := range projects {
		dp := dashboardProject{Project: p, Goals: []dashboardGoal{}}
		for _, g := range goals {
			if g.ProjectID != nil && *g.ProjectID == p.ID {
				dp.Goals = append(dp.Goals, dashboardGoal{Goal: g, Tasks: goalTasksWithSubtasks(g.ID, tasks)})
			}
		}
		h.Projects = append(h.Projects, dp)
	}

	for _, g := range goals {
		if g.ProjectID == nil {
			h.OrphanedGoals = append(h.OrphanedGoals, dashboardGoal{Goal: g, Tasks: goalTasksWithSubtasks(g.ID, tasks)})
		}
	}
	return h
}

func goalTasksWithSubtasks(goalID string, tasks []*store.ScheduledTask) []dashboardTask {
	out := []dashboardTask{}
	for _, t := range tasks {
		if t.GoalID == nil || *t.GoalID != goalID || t.ParentTaskID != nil {
			continue
		}
		dt := toDashboardTask(t)
		for _, st := range tasks {
			if st.ParentTaskID != nil && *st.ParentTaskID == t.ID {
				dt.Subtasks = append(dt.Subtasks, toDashboardTask(st))
			}
		}
		out = append(out, dt)
	}
	return out
}

func toDashboardTask(t *store.ScheduledTask) dashboardTask {
	return dashboardTask{
		ID:            t.ID,
		Prompt:        t.Prompt,
		ScheduleType:  t.ScheduleType,
		ScheduleValue: t.ScheduleValue,
		Status:        t.Status,
		NextRun:       t.NextRun,
		LastRun:       t.LastRun,
		LastResult:    t.LastResult,
	}
}

func buildGoalList(goals []*store.Goal, tasks []*store.ScheduledTask) []dashboardGoal {
	out := make([]dashboardGoal, 0, len(goals))
	for _, g := range goals {
		dg := dashboardGoal{Goal: g, Tasks: []dashboardTask{}}
		for _, t := range tasks {
			if t.GoalID != nil && *t.GoalID == g.ID {
				dg.Tasks = append(dg.Tasks, toDashboardTask(t))
			}
		}
		out = append(out, dg)
	}
	return out
}

func buildRecurringTasks(tasks []*store.ScheduledTask) []dashboardTask {
	out := []dashboardTask{}
	for _, t := range tasks {
		if t.ScheduleType == store.ScheduleOnce || t.Status != store.TaskActive {
			continue
		}
		dt := toDashboardTask(t)
		dt.CreatedAt = t.CreatedAt
		dt.GoalID = t.GoalID
		out = append(out, dt)
	}
	return out
}

func (w *Writer) buildActivityFeed(groupDir string, projects []*store.Project, goals []*store.Goal, tasks []*store.ScheduledTask) []feedEvent {
	feed := []feedEvent{}

	for _, p := range projects {
		feed = append(feed, feedEvent{
			Type:      "project_created",
			Timestamp: p.CreatedAt,
			Title:     "Project created: " + p.Name,
			Details:   truncate(deref(p.Description), 100),
		})
		if p.Status == "completed" {
			feed = append(feed, feedEvent{
				Type:      "project_completed",
				Timestamp: p.UpdatedAt,
				Title:     "Project completed: " + p.Name,
				Details:   "Marked as completed",
			})
		}
	}

	for _, g := range goals {
		feed = append(feed, feedEvent{
			Type:      "goal_created",
			Timestamp: g.CreatedAt,
			Title:     "Goal created: " + g.Title,
			Details:   truncate(deref(g.Description), 100),
		})
		if g.CompletedAt != nil {
			feed = append(feed, feedEvent{
				Type:      "goal_completed",
				Timestamp: *g.CompletedAt,
				Title:     "Goal completed: " + g.Title,
				Details:   "Marked as " + g.Status,
			})
		}
	}

	for _, t := range tasks {
		kind := "Recurring (" + string(t.ScheduleType) + ")"
		if t.ScheduleType == store.ScheduleOnce {
			kind = "One-time task"
		}
		feed = append(feed, feedEvent{
			Type:      "task_created",
			Timestamp: t.CreatedAt,
			Title:     "Task created: " + truncate(t.Prompt, 60),
			Details:   kind,
		})
		if t.LastRun != nil {
			details := "Completed"
			if t.LastResult != nil {
				details = truncate(*t.LastResult, 100)
			}
			feed = append(feed, feedEvent{
				Type:      "recurring_run",
				Timestamp: *t.LastRun,
				Title:     "Task ran: " + truncate(t.Prompt, 60),
				Details:   details,
			})
		}
	}

	feed = append(feed, readCallTranscripts(groupDir)...)

	sort.Slice(feed, func(i, j int) bool {
		return feed[i].Timestamp > feed[j].Timestamp
	})
	return feed
}

// readCallTranscripts folds saved call transcripts into the feed.
// Malformed transcript files are skipped.
func readCallTranscripts(groupDir string) []feedEvent {
	transcriptsDir := filepath.Join(groupDir, "call-transcripts")
	entries, err := os.ReadDir(transcriptsDir)
	if err != nil {
		return nil
	}

	var events []feedEvent
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(transcriptsDir, e.Name()))
		if err != nil {
			continue
		}
		var transcript struct {
			StartTime string `json:"startTime"`
			EndTime   string `json:"endTime"`
			Duration  string `json:"duration"`
			Purpose   string `json:"purpose"`
		}
		if err := json.Unmarshal(raw, &transcript); err != nil {
			continue
		}

		ts := transcript.StartTime
		if ts == "" {
			ts = transcript.EndTime
		}
		if ts == "" {
			ts = store.Now()
		}
		title := "Phone call"
		if transcript.Duration != "" {
			title += " (" + transcript.Duration + ")"
		}
		details := "Voice call"
		if transcript.Purpose != "" {
			details = truncate(transcript.Purpose, 120)
		}
		events = append(events, feedEvent{Type: "call", Timestamp: ts, Title: title, Details: details})
	}
	return events
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
