package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Workspace.MainGroupFolder)
	assert.Equal(t, "Andy", cfg.Workspace.AssistantName)
	assert.Equal(t, `^@?Andy\b`, cfg.Workspace.TriggerPattern)
	assert.Equal(t, 2000, cfg.Router.PollIntervalMs)
	assert.Equal(t, 30000, cfg.Scheduler.PollIntervalMs)
	assert.Equal(t, 300000, cfg.Scheduler.DefaultTimeoutMs)
	assert.Equal(t, 0, cfg.Queue.MaxConcurrentGroups)
	assert.Equal(t, 5, cfg.Queue.RetryMaxAttempts)
	assert.Equal(t, "nanoclaw/agent:latest", cfg.Container.Image)
	assert.Equal(t, 3001, cfg.API.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadExpandsEnvToken(t *testing.T) {
	t.Setenv("NANOCLAW_TEST_TOKEN", "12345:secret")

	cfg, err := Load(writeConfig(t, `
[telegram]
enabled = true
token = "${NANOCLAW_TEST_TOKEN}"
`))
	require.NoError(t, err)
	assert.Equal(t, "12345:secret", cfg.Telegram.Token)
}

func TestLoadEnvDefaultFallback(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[telegram]
token = "${NANOCLAW_UNSET_VAR:999:fallback}"
`))
	require.NoError(t, err)
	assert.Equal(t, "999:fallback", cfg.Telegram.Token)
}

func TestValidateCatchesProblems(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[telegram]
enabled = true
token = "not-a-token"

[api]
enabled = true
port = 99999
`))
	require.NoError(t, err)

	errs := cfg.Validate()
	require.NotEmpty(t, errs)

	var messages []string
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	assert.Contains(t, messages, "telegram token has invalid format (expected <bot_id>:<token>)")
	assert.Contains(t, messages, "api.port must be in 1-65535, got 99999")
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Empty(t, cfg.Validate())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
