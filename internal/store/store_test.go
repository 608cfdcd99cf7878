package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, DBFilename))
	assert.NoError(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening an existing database must re-apply the schema without error.
	s, err = Open(dir)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestMigrateJSONState(t *testing.T) {
	dir := t.TempDir()

	routerState := map[string]any{
		"last_timestamp": "2026-01-02T03:04:05Z",
		"last_agent_timestamp": map[string]string{
			"main": "2026-01-02T03:00:00Z",
		},
	}
	raw, err := json.Marshal(routerState)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "router_state.json"), raw, 0644))

	sessions := map[string]string{"main": "session-abc"}
	raw, err = json.Marshal(sessions)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.json"), raw, 0644))

	groups := map[string]*RegisteredGroup{
		"123@g.us": {
			Name:           "Main",
			Folder:         "main",
			TriggerPattern: `^@?Andy\b`,
			AddedAt:        "2026-01-01T00:00:00Z",
		},
	}
	raw, err = json.Marshal(groups)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "registered_groups.json"), raw, 0644))

	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	ts, err := s.RouterState("last_timestamp")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T03:04:05Z", ts)

	agentTS, err := s.RouterState("last_agent_timestamp")
	require.NoError(t, err)
	var cursors map[string]string
	require.NoError(t, json.Unmarshal([]byte(agentTS), &cursors))
	assert.Equal(t, "2026-01-02T03:00:00Z", cursors["main"])

	sessionID, err := s.Session("main")
	require.NoError(t, err)
	assert.Equal(t, "session-abc", sessionID)

	g, err := s.GroupByJID("123@g.us")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "main", g.Folder)

	// Source files are renamed so the import never runs twice.
	_, err = os.Stat(filepath.Join(dir, "router_state.json.migrated"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "sessions.json.migrated"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "registered_groups.json.migrated"))
	assert.NoError(t, err)
}

func TestMigrateJSONStateSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.json"), []byte("{not json"), 0644))

	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	// Corrupt file is left in place and ignored.
	_, err = os.Stat(filepath.Join(dir, "sessions.json"))
	assert.NoError(t, err)
}
