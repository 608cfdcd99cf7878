// Package ipc lets agent containers request privileged actions through a
// filesystem drop-box. The directory a file was written to is the only
// trusted statement of who sent it; nothing in the payload can widen a
// group's authority.
package ipc

import "github.com/aatumaykin/nanoclaw/internal/store"

// Action is the discriminated union carried by one drop-box file. Only
// the fields relevant to its Type are set.
type Action struct {
	Type string `json:"type"`

	// message
	ChatJID string `json:"chatJid,omitempty"`
	Text    string `json:"text,omitempty"`

	// schedule_task
	Prompt        string  `json:"prompt,omitempty"`
	ScheduleType  string  `json:"schedule_type,omitempty"`
	ScheduleValue string  `json:"schedule_value,omitempty"`
	ContextMode   string  `json:"context_mode,omitempty"`
	TargetJID     string  `json:"targetJid,omitempty"`
	DependsOn     *string `json:"depends_on,omitempty"`
	TimeoutSec    int64   `json:"timeout,omitempty"` // seconds, capped at 900
	ParentTaskID  *string `json:"parent_task_id,omitempty"`

	// pause_task / resume_task / cancel_task
	TaskID string `json:"taskId,omitempty"`

	// register_group
	JID             string                      `json:"jid,omitempty"`
	Folder          string                      `json:"folder,omitempty"`
	Trigger         string                      `json:"trigger,omitempty"`
	RequiresTrigger *bool                       `json:"requiresTrigger,omitempty"`
	ContainerConfig *store.GroupContainerConfig `json:"containerConfig,omitempty"`

	// create_goal / update_goal / create_project / update_project.
	// Name doubles as the group display name for register_group.
	ID          string  `json:"id,omitempty"`
	GoalID      string  `json:"goalId,omitempty"`
	ProjectID   string  `json:"projectId,omitempty"`
	Name        string  `json:"name,omitempty"`
	Title       string  `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	Deadline    *string `json:"deadline,omitempty"`
	Status      string  `json:"status,omitempty"`
	Progress    *int    `json:"progress,omitempty"`
	ProjectRef  *string `json:"project_id,omitempty"`
	GoalRef     *string `json:"goal_id,omitempty"`

	// request_help
	RequestType string  `json:"request_type,omitempty"`
	TaskRef     *string `json:"task_id,omitempty"`
}
