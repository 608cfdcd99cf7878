// Package config provides configuration loading and validation for NanoClaw.
// It supports TOML configuration files with environment variable expansion,
// default values, and comprehensive validation.
//
// Configuration structure:
//   - [workspace]: Data directory, group storage, main group, trigger pattern
//   - [router]: Inbound message polling
//   - [scheduler]: Task scheduler polling and default timeouts
//   - [ipc]: File-drop IPC polling
//   - [queue]: Group queue concurrency and retry behavior
//   - [container]: Agent container image and resource limits
//   - [api]: Administrative HTTP surface
//   - [telegram]: Chat transport
//   - [logging]: Logging level, format, and output
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax. For example: token = "${NANOCLAW_BOT_TOKEN}"
package config

// Config represents the main application configuration.
type Config struct {
	Workspace WorkspaceConfig `toml:"workspace"`
	Router    RouterConfig    `toml:"router"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	IPC       IPCConfig       `toml:"ipc"`
	Queue     QueueConfig     `toml:"queue"`
	Container ContainerConfig `toml:"container"`
	API       APIConfig       `toml:"api"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Logging   LoggingConfig   `toml:"logging"`
}

// WorkspaceConfig describes where durable state and group folders live.
type WorkspaceConfig struct {
	DataDir         string `toml:"data_dir"`          // SQLite store, IPC tree, state files
	GroupsDir       string `toml:"groups_dir"`        // per-group storage folders
	MainGroupFolder string `toml:"main_group_folder"` // folder of the privileged group
	AssistantName   string `toml:"assistant_name"`    // prefix for outbound messages
	TriggerPattern  string `toml:"trigger_pattern"`   // regex that activates non-main groups
	Timezone        string `toml:"timezone"`          // IANA zone for cron evaluation
}

// RouterConfig controls the inbound message polling loop.
type RouterConfig struct {
	PollIntervalMs int `toml:"poll_interval_ms"`
}

// SchedulerConfig controls the task scheduler polling loop.
type SchedulerConfig struct {
	PollIntervalMs   int `toml:"poll_interval_ms"`
	DefaultTimeoutMs int `toml:"default_timeout_ms"` // per-run timeout when neither task nor group overrides
}

// IPCConfig controls the file-drop IPC dispatcher.
type IPCConfig struct {
	PollIntervalMs int `toml:"poll_interval_ms"`
}

// QueueConfig controls the group queue.
type QueueConfig struct {
	MaxConcurrentGroups int `toml:"max_concurrent_groups"` // 0 = unbounded
	RetryMaxAttempts    int `toml:"retry_max_attempts"`
	RetryInitialMs      int `toml:"retry_initial_ms"`
	RetryMaxMs          int `toml:"retry_max_ms"`
}

// ContainerConfig describes the agent container runtime.
type ContainerConfig struct {
	Image       string  `toml:"image"`
	MemoryLimit string  `toml:"memory_limit"` // e.g. "512m"
	CPULimit    float64 `toml:"cpu_limit"`
	PidsLimit   int64   `toml:"pids_limit"`
}

// APIConfig describes the administrative HTTP server.
type APIConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// TelegramConfig describes the chat transport.
type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
}

// LoggingConfig describes logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}
