package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

func testWriter(t *testing.T) (*Writer, *store.Store, string) {
	t.Helper()

	dataDir := t.TempDir()
	groupsDir := t.TempDir()

	st, err := store.Open(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log, err := logger.New(logger.Config{Level: "error", Format: "text", Output: "stdout"})
	require.NoError(t, err)

	return NewWriter(st, dataDir, groupsDir, "main", log), st, dataDir
}

func readJSONFile(t *testing.T, path string, v any) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func seedTask(t *testing.T, st *store.Store, id, folder string) {
	t.Helper()
	require.NoError(t, st.CreateTask(&store.ScheduledTask{
		ID:            id,
		GroupFolder:   folder,
		ChatJID:       folder + "@g.us",
		Prompt:        "do work",
		ScheduleType:  store.ScheduleCron,
		ScheduleValue: "0 9 * * *",
		Status:        store.TaskActive,
		CreatedAt:     store.Now(),
	}))
}

func TestWriteTasksFiltersByGroup(t *testing.T) {
	w, st, dataDir := testWriter(t)

	seedTask(t, st, "t-main", "main")
	seedTask(t, st, "t-family", "family")

	require.NoError(t, w.WriteTasks("family"))
	var familyView []map[string]any
	readJSONFile(t, filepath.Join(dataDir, "ipc", "family", "tasks.json"), &familyView)
	require.Len(t, familyView, 1)
	assert.Equal(t, "t-family", familyView[0]["id"])

	require.NoError(t, w.WriteTasks("main"))
	var mainView []map[string]any
	readJSONFile(t, filepath.Join(dataDir, "ipc", "main", "tasks.json"), &mainView)
	assert.Len(t, mainView, 2)
}

func TestWriteHelpRequestsFiltersByGroup(t *testing.T) {
	w, st, dataDir := testWriter(t)

	require.NoError(t, st.CreateHelpRequest(&store.HelpRequest{
		ID: "h-main", GroupFolder: "main", Title: "a", Description: "d",
		RequestType: "question", Status: "open",
		CreatedAt: store.Now(), UpdatedAt: store.Now(),
	}))
	require.NoError(t, st.CreateHelpRequest(&store.HelpRequest{
		ID: "h-family", GroupFolder: "family", Title: "b", Description: "d",
		RequestType: "question", Status: "open",
		CreatedAt: store.Now(), UpdatedAt: store.Now(),
	}))

	require.NoError(t, w.WriteHelpRequests("family"))
	var familyView []map[string]any
	readJSONFile(t, filepath.Join(dataDir, "ipc", "family", "help_requests.json"), &familyView)
	require.Len(t, familyView, 1)
	assert.Equal(t, "h-family", familyView[0]["id"])

	require.NoError(t, w.WriteHelpRequests("main"))
	var mainView []map[string]any
	readJSONFile(t, filepath.Join(dataDir, "ipc", "main", "help_requests.json"), &mainView)
	assert.Len(t, mainView, 2)
}

func TestWriteGroupsMainSeesAllChats(t *testing.T) {
	w, st, dataDir := testWriter(t)

	require.NoError(t, st.StoreChatMetadata("1@g.us", "2026-01-01T00:00:00Z"))
	require.NoError(t, st.UpdateChatName("1@g.us", "Main"))
	require.NoError(t, st.StoreChatMetadata("2@g.us", "2026-01-02T00:00:00Z"))
	require.NoError(t, st.UpdateChatName("2@g.us", "Unregistered"))

	registered := map[string]*store.RegisteredGroup{
		"1@g.us": {JID: "1@g.us", Name: "Main", Folder: "main"},
	}

	require.NoError(t, w.WriteGroups("main", registered))
	var mainView []groupEntry
	readJSONFile(t, filepath.Join(dataDir, "ipc", "main", "groups.json"), &mainView)
	require.Len(t, mainView, 2)

	byJID := map[string]groupEntry{}
	for _, e := range mainView {
		byJID[e.JID] = e
	}
	assert.True(t, byJID["1@g.us"].Registered)
	assert.False(t, byJID["2@g.us"].Registered)

	require.NoError(t, w.WriteGroups("family", registered))
	var familyView []groupEntry
	readJSONFile(t, filepath.Join(dataDir, "ipc", "family", "groups.json"), &familyView)
	assert.Empty(t, familyView)
}

func TestWriteAgentStatus(t *testing.T) {
	w, _, _ := testWriter(t)

	require.NoError(t, w.WriteAgentStatus("main", true))
	var status agentStatus
	readJSONFile(t, filepath.Join(w.groupsDir, "main", "agent-status.json"), &status)
	assert.Equal(t, "working", status.Status)
	assert.NotEmpty(t, status.Since)

	require.NoError(t, w.WriteAgentStatus("main", false))
	readJSONFile(t, filepath.Join(w.groupsDir, "main", "agent-status.json"), &status)
	assert.Equal(t, "idle", status.Status)
}

func TestWriteDashboard(t *testing.T) {
	w, st, _ := testWriter(t)

	require.NoError(t, st.CreateProject(&store.Project{
		ID: "proj-1", GroupFolder: "main", Name: "website", Status: "active",
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z",
	}))

	projectID := "proj-1"
	require.NoError(t, st.CreateGoal(&store.Goal{
		ID: "goal-1", GroupFolder: "main", ProjectID: &projectID,
		Title: "launch", Status: "active", Priority: "high",
		CreatedAt: "2026-01-02T00:00:00Z", UpdatedAt: "2026-01-02T00:00:00Z",
	}))
	require.NoError(t, st.CreateGoal(&store.Goal{
		ID: "goal-orphan", GroupFolder: "main",
		Title: "standalone", Status: "active", Priority: "low",
		CreatedAt: "2026-01-03T00:00:00Z", UpdatedAt: "2026-01-03T00:00:00Z",
	}))

	goalID := "goal-1"
	parent := &store.ScheduledTask{
		ID: "task-1", GroupFolder: "main", ChatJID: "1@g.us",
		Prompt: "build it", ScheduleType: store.ScheduleCron, ScheduleValue: "0 9 * * *",
		Status: store.TaskActive, CreatedAt: "2026-01-04T00:00:00Z", GoalID: &goalID,
	}
	require.NoError(t, st.CreateTask(parent))

	parentID := "task-1"
	require.NoError(t, st.CreateTask(&store.ScheduledTask{
		ID: "subtask-1", GroupFolder: "main", ChatJID: "1@g.us",
		Prompt: "test it", ScheduleType: store.ScheduleOnce,
		ScheduleValue: "2026-02-01T00:00:00Z",
		Status:        store.TaskActive, CreatedAt: "2026-01-05T00:00:00Z",
		GoalID:        &goalID, ParentTaskID: &parentID,
	}))

	require.NoError(t, w.WriteDashboard("main"))

	dir := filepath.Join(w.groupsDir, "main")
	for _, name := range []string{
		"projects.json", "goals.json", "recurring-tasks.json",
		"activity-feed.json", "requests.json",
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	var hierarchy projectHierarchy
	readJSONFile(t, filepath.Join(dir, "projects.json"), &hierarchy)
	require.Len(t, hierarchy.Projects, 1)
	require.Len(t, hierarchy.Projects[0].Goals, 1)
	projGoal := hierarchy.Projects[0].Goals[0]
	require.Len(t, projGoal.Tasks, 1)
	assert.Equal(t, "task-1", projGoal.Tasks[0].ID)
	require.Len(t, projGoal.Tasks[0].Subtasks, 1)
	assert.Equal(t, "subtask-1", projGoal.Tasks[0].Subtasks[0].ID)

	require.Len(t, hierarchy.OrphanedGoals, 1)
	assert.Equal(t, "goal-orphan", hierarchy.OrphanedGoals[0].ID)

	// Recurring tasks exclude one-shot schedules.
	var recurring []dashboardTask
	readJSONFile(t, filepath.Join(dir, "recurring-tasks.json"), &recurring)
	require.Len(t, recurring, 1)
	assert.Equal(t, "task-1", recurring[0].ID)

	var feed []feedEvent
	readJSONFile(t, filepath.Join(dir, "activity-feed.json"), &feed)
	require.NotEmpty(t, feed)
	// Newest first.
	for i := 1; i < len(feed); i++ {
		assert.GreaterOrEqual(t, feed[i-1].Timestamp, feed[i].Timestamp)
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("日", 50)

	got := truncate(long, 100)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, 99)

	assert.Equal(t, "short", truncate("short", 100))
}
