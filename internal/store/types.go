package store

// ScheduleType is how a task's schedule value is interpreted.
type ScheduleType string

const (
	ScheduleCron     ScheduleType = "cron"     // standard cron expression
	ScheduleInterval ScheduleType = "interval" // milliseconds between runs
	ScheduleOnce     ScheduleType = "once"     // single ISO timestamp
)

// ContextMode selects the agent session a task run uses.
type ContextMode string

const (
	ContextGroup    ContextMode = "group"    // reuse the group's live session
	ContextIsolated ContextMode = "isolated" // fresh session per run
)

// TaskStatus is the lifecycle state of a scheduled task.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
)

// ScheduledTask is a unit of recurring or one-shot agent work.
// Timestamps are RFC 3339 strings so ordering is plain string comparison.
type ScheduledTask struct {
	ID            string       `json:"id"`
	GroupFolder   string       `json:"group_folder"`
	ChatJID       string       `json:"chat_jid"`
	Prompt        string       `json:"prompt"`
	ScheduleType  ScheduleType `json:"schedule_type"`
	ScheduleValue string       `json:"schedule_value"`
	ContextMode   ContextMode  `json:"context_mode"`
	NextRun       *string      `json:"next_run"`
	LastRun       *string      `json:"last_run"`
	LastResult    *string      `json:"last_result"`
	Status        TaskStatus   `json:"status"`
	CreatedAt     string       `json:"created_at"`
	GoalID        *string      `json:"goal_id"`
	DependsOn     *string      `json:"depends_on"` // parent task id; next_run stays NULL until parent succeeds
	TimeoutMs     *int64       `json:"timeout"`
	ParentTaskID  *string      `json:"parent_task_id"`
}

// TaskRunLog is one execution record. Append-only.
type TaskRunLog struct {
	TaskID     string  `json:"task_id"`
	RunAt      string  `json:"run_at"`
	DurationMs int64   `json:"duration_ms"`
	Status     string  `json:"status"` // success | error
	Result     *string `json:"result"`
	Error      *string `json:"error"`
}

// Goal is a higher-level objective the agent works toward.
type Goal struct {
	ID          string  `json:"id"`
	GroupFolder string  `json:"group_folder"`
	ProjectID   *string `json:"project_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`   // active | paused | completed | cancelled
	Priority    string  `json:"priority"` // high | medium | low
	Progress    int     `json:"progress"` // 0-100
	Deadline    *string `json:"deadline"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	CompletedAt *string `json:"completed_at"`
}

// Project groups goals. It has no scheduling behavior of its own.
type Project struct {
	ID          string  `json:"id"`
	GroupFolder string  `json:"group_folder"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Status      string  `json:"status"` // active | paused | completed | archived
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// HelpRequest is an escalation from an agent to a human.
type HelpRequest struct {
	ID          string  `json:"id"`
	GroupFolder string  `json:"group_folder"`
	ProjectID   *string `json:"project_id"`
	GoalID      *string `json:"goal_id"`
	TaskID      *string `json:"task_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	RequestType string  `json:"request_type"` // blocker | question | access | integration
	Status      string  `json:"status"`       // open | resolved
	Response    *string `json:"response"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	ResolvedAt  *string `json:"resolved_at"`
}

// GroupContainerConfig holds per-group container runtime overrides.
type GroupContainerConfig struct {
	AdditionalMounts []GroupMount `json:"additionalMounts,omitempty"`
	TimeoutMs        *int64       `json:"timeout,omitempty"`
}

// GroupMount is an extra bind mount for a group's agent container.
type GroupMount struct {
	HostPath      string `json:"hostPath"`
	ContainerPath string `json:"containerPath"`
	ReadOnly      bool   `json:"readonly"`
}

// RegisteredGroup is the identity and configuration of one conversational
// context. The group whose folder matches the configured main folder is
// privileged.
type RegisteredGroup struct {
	JID             string                `json:"jid"`
	Name            string                `json:"name"`
	Folder          string                `json:"folder"`
	TriggerPattern  string                `json:"trigger"`
	AddedAt         string                `json:"added_at"`
	ContainerConfig *GroupContainerConfig `json:"containerConfig,omitempty"`
	RequiresTrigger bool                  `json:"requiresTrigger"`
}

// ChatInfo is lightweight chat metadata used for group discovery.
type ChatInfo struct {
	JID             string `json:"jid"`
	Name            string `json:"name"`
	LastMessageTime string `json:"last_message_time"`
}

// Message is one stored inbound chat message.
type Message struct {
	ID         string `json:"id"`
	ChatJID    string `json:"chat_jid"`
	Sender     string `json:"sender"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	IsFromMe   bool   `json:"is_from_me"`
}
