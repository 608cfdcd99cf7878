package config

func applyDefaults(c *Config) {
	if c.Workspace.DataDir == "" {
		c.Workspace.DataDir = "~/.nanoclaw/data"
	}
	if c.Workspace.GroupsDir == "" {
		c.Workspace.GroupsDir = "~/.nanoclaw/groups"
	}
	if c.Workspace.MainGroupFolder == "" {
		c.Workspace.MainGroupFolder = "main"
	}
	if c.Workspace.AssistantName == "" {
		c.Workspace.AssistantName = "Andy"
	}
	if c.Workspace.TriggerPattern == "" {
		c.Workspace.TriggerPattern = `^@?` + c.Workspace.AssistantName + `\b`
	}
	if c.Workspace.Timezone == "" {
		c.Workspace.Timezone = "Local"
	}

	if c.Router.PollIntervalMs == 0 {
		c.Router.PollIntervalMs = 2000
	}
	if c.Scheduler.PollIntervalMs == 0 {
		c.Scheduler.PollIntervalMs = 30000
	}
	if c.Scheduler.DefaultTimeoutMs == 0 {
		c.Scheduler.DefaultTimeoutMs = 300000 // 5 minutes
	}
	if c.IPC.PollIntervalMs == 0 {
		c.IPC.PollIntervalMs = 1000
	}

	if c.Queue.RetryMaxAttempts == 0 {
		c.Queue.RetryMaxAttempts = 5
	}
	if c.Queue.RetryInitialMs == 0 {
		c.Queue.RetryInitialMs = 1000
	}
	if c.Queue.RetryMaxMs == 0 {
		c.Queue.RetryMaxMs = 60000
	}

	if c.Container.Image == "" {
		c.Container.Image = "nanoclaw/agent:latest"
	}
	if c.Container.MemoryLimit == "" {
		c.Container.MemoryLimit = "512m"
	}
	if c.Container.CPULimit == 0 {
		c.Container.CPULimit = 1.0
	}
	if c.Container.PidsLimit == 0 {
		c.Container.PidsLimit = 200
	}

	if c.API.Port == 0 {
		c.API.Port = 3001
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}
