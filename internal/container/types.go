package container

// AgentInput is the JSON handed to the agent subprocess on stdin.
type AgentInput struct {
	Prompt      string `json:"prompt"`
	SessionID   string `json:"sessionId,omitempty"`
	GroupFolder string `json:"groupFolder"`
	ChatJID     string `json:"chatJid"`
	IsMain      bool   `json:"isMain"`
}

// AgentResult is the structured payload of a successful run.
type AgentResult struct {
	OutputType  string `json:"outputType"` // message | log
	UserMessage string `json:"userMessage,omitempty"`
	InternalLog string `json:"internalLog,omitempty"`
}

// AgentOutput is the single JSON line the agent writes to stdout when done.
type AgentOutput struct {
	Status       string       `json:"status"` // success | error
	Result       *AgentResult `json:"result,omitempty"`
	Error        string       `json:"error,omitempty"`
	NewSessionID string       `json:"newSessionId,omitempty"`
}

// StartedFn is called right after the container starts, with a handle the
// caller can use to terminate it.
type StartedFn func(handle *Handle, containerName string)
