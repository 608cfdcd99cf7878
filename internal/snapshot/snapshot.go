// Package snapshot publishes read-only JSON views of the durable state.
// Agent subprocesses have no database access; they observe tasks, goals,
// projects, help requests, and available groups through snapshot files in
// their IPC directory, and humans observe progress through the dashboard
// files in the group folder.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

// Writer renders snapshot and dashboard files for groups.
type Writer struct {
	store      *store.Store
	dataDir    string
	groupsDir  string
	mainFolder string
	logger     *logger.Logger
}

func NewWriter(st *store.Store, dataDir, groupsDir, mainFolder string, log *logger.Logger) *Writer {
	return &Writer{
		store:      st,
		dataDir:    dataDir,
		groupsDir:  groupsDir,
		mainFolder: mainFolder,
		logger:     log,
	}
}

// IsMain reports whether a folder is the privileged main group.
func (w *Writer) IsMain(groupFolder string) bool {
	return groupFolder == w.mainFolder
}

func (w *Writer) ipcDir(groupFolder string) string {
	return filepath.Join(w.dataDir, "ipc", groupFolder)
}

func (w *Writer) groupDir(groupFolder string) string {
	return filepath.Join(w.groupsDir, groupFolder)
}

// writeJSON publishes a file atomically. A reader either sees the old
// content or the new content, never a partial write.
func writeJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	tmp := filepath.Join(dir, name+".tmp")
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, filepath.Join(dir, name))
}

type taskSnapshot struct {
	ID            string              `json:"id"`
	GroupFolder   string              `json:"groupFolder"`
	Prompt        string              `json:"prompt"`
	ScheduleType  store.ScheduleType  `json:"schedule_type"`
	ScheduleValue string              `json:"schedule_value"`
	Status        store.TaskStatus    `json:"status"`
	NextRun       *string             `json:"next_run"`
}

// WriteTasks renders the task list a group's agent may see. The main
// group sees every task, other groups only their own.
func (w *Writer) WriteTasks(groupFolder string) error {
	tasks, err := w.store.AllTasks()
	if err != nil {
		return err
	}

	isMain := w.IsMain(groupFolder)
	out := make([]taskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		if !isMain && t.GroupFolder != groupFolder {
			continue
		}
		out = append(out, taskSnapshot{
			ID:            t.ID,
			GroupFolder:   t.GroupFolder,
			Prompt:        t.Prompt,
			ScheduleType:  t.ScheduleType,
			ScheduleValue: t.ScheduleValue,
			Status:        t.Status,
			NextRun:       t.NextRun,
		})
	}
	return writeJSON(w.ipcDir(groupFolder), "tasks.json", out)
}

type goalSnapshot struct {
	ID          string  `json:"id"`
	GroupFolder string  `json:"group_folder"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	Progress    int     `json:"progress"`
	Deadline    *string `json:"deadline"`
}

// WriteGoals renders the goal list visible to a group's agent.
func (w *Writer) WriteGoals(groupFolder string) error {
	goals, err := w.store.AllGoals()
	if err != nil {
		return err
	}

	isMain := w.IsMain(groupFolder)
	out := make([]goalSnapshot, 0, len(goals))
	for _, g := range goals {
		if !isMain && g.GroupFolder != groupFolder {
			continue
		}
		out = append(out, goalSnapshot{
			ID:          g.ID,
			GroupFolder: g.GroupFolder,
			Title:       g.Title,
			Description: g.Description,
			Status:      g.Status,
			Priority:    g.Priority,
			Progress:    g.Progress,
			Deadline:    g.Deadline,
		})
	}
	return writeJSON(w.ipcDir(groupFolder), "goals.json", out)
}

type projectSnapshot struct {
	ID          string  `json:"id"`
	GroupFolder string  `json:"group_folder"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
}

// WriteProjects renders the project list visible to a group's agent.
func (w *Writer) WriteProjects(groupFolder string) error {
	projects, err := w.store.AllProjects()
	if err != nil {
		return err
	}

	isMain := w.IsMain(groupFolder)
	out := make([]projectSnapshot, 0, len(projects))
	for _, p := range projects {
		if !isMain && p.GroupFolder != groupFolder {
			continue
		}
		out = append(out, projectSnapshot{
			ID:          p.ID,
			GroupFolder: p.GroupFolder,
			Name:        p.Name,
			Description: p.Description,
			Status:      p.Status,
		})
	}
	return writeJSON(w.ipcDir(groupFolder), "projects.json", out)
}

// WriteHelpRequests renders the help requests a group's agent may read
// back responses from.
func (w *Writer) WriteHelpRequests(groupFolder string) error {
	var (
		reqs []*store.HelpRequest
		err  error
	)
	if w.IsMain(groupFolder) {
		reqs, err = w.store.AllHelpRequests()
	} else {
		reqs, err = w.store.HelpRequestsForGroup(groupFolder)
	}
	if err != nil {
		return err
	}
	if reqs == nil {
		reqs = []*store.HelpRequest{}
	}
	return writeJSON(w.ipcDir(groupFolder), "help_requests.json", reqs)
}

type groupEntry struct {
	JID          string `json:"jid"`
	Name         string `json:"name"`
	LastActivity string `json:"lastActivity"`
	Registered   bool   `json:"registered"`
}

// WriteGroups renders the chats an agent may target. Only the main group
// sees the full chat list; other groups see just themselves.
func (w *Writer) WriteGroups(groupFolder string, registered map[string]*store.RegisteredGroup) error {
	out := []groupEntry{}

	if w.IsMain(groupFolder) {
		chats, err := w.store.AllChats()
		if err != nil {
			return err
		}
		for _, c := range chats {
			_, isRegistered := registered[c.JID]
			name := c.Name
			if g, ok := registered[c.JID]; ok && name == "" {
				name = g.Name
			}
			out = append(out, groupEntry{
				JID:          c.JID,
				Name:         name,
				LastActivity: c.LastMessageTime,
				Registered:   isRegistered,
			})
		}
	} else {
		for jid, g := range registered {
			if g.Folder == groupFolder {
				out = append(out, groupEntry{JID: jid, Name: g.Name, Registered: true})
			}
		}
	}
	return writeJSON(w.ipcDir(groupFolder), "groups.json", out)
}

// WriteAll refreshes every snapshot an agent reads before a run.
func (w *Writer) WriteAll(groupFolder string, registered map[string]*store.RegisteredGroup) {
	for name, fn := range map[string]func() error{
		"tasks":         func() error { return w.WriteTasks(groupFolder) },
		"goals":         func() error { return w.WriteGoals(groupFolder) },
		"projects":      func() error { return w.WriteProjects(groupFolder) },
		"help_requests": func() error { return w.WriteHelpRequests(groupFolder) },
		"groups":        func() error { return w.WriteGroups(groupFolder, registered) },
	} {
		if err := fn(); err != nil {
			w.logger.Error("snapshot write failed", err,
				logger.Field{Key: "group", Value: groupFolder},
				logger.Field{Key: "snapshot", Value: name})
		}
	}
}

type agentStatus struct {
	Status string `json:"status"`
	Since  string `json:"since"`
}

// WriteAgentStatus publishes the group's working/idle state next to the
// group's files, for the dashboard to poll.
func (w *Writer) WriteAgentStatus(groupFolder string, working bool) error {
	status := "idle"
	if working {
		status = "working"
	}
	return writeJSON(w.groupDir(groupFolder), "agent-status.json", agentStatus{
		Status: status,
		Since:  store.Now(),
	})
}
