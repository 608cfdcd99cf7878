package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/snapshot"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

func testLogger() *logger.Logger {
	log, err := logger.New(logger.Config{
		Level:  "debug",
		Format: "text",
		Output: "stdout",
	})
	if err != nil {
		panic(err)
	}
	return log
}

type apiFixture struct {
	store  *store.Store
	server *Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.RegisterGroup(&store.RegisteredGroup{
		JID:     "jid-main",
		Name:    "Main",
		Folder:  "main",
		AddedAt: store.Now(),
	}))

	groupsDir := t.TempDir()
	log := testLogger()
	snapshots := snapshot.NewWriter(st, t.TempDir(), groupsDir, "main", log)
	groups := func() map[string]*store.RegisteredGroup {
		gs, err := st.RegisteredGroups()
		require.NoError(t, err)
		return gs
	}

	server := New(Config{
		Enabled:    true,
		GroupsDir:  groupsDir,
		MainFolder: "main",
		Timezone:   time.UTC,
	}, Deps{Store: st, Snapshots: snapshots, Groups: groups}, log)

	return &apiFixture{store: st, server: server}
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCORSPreflight(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodOptions, "/goals", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteIs404(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "website-redesign", slugify("  Website Redesign! "))
	assert.Equal(t, "a-b-c", slugify("a... b___c"))
	long := strings.Repeat("x", 60)
	assert.Len(t, slugify(long), 40)
}

func TestProjectLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/projects", `{"name": "Website Redesign", "description": "new look"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "proj-website-redesign", created["id"])

	p, err := f.store.ProjectByID("proj-website-redesign")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Website Redesign", p.Name)
	assert.Equal(t, "active", p.Status)
	assert.Equal(t, "main", p.GroupFolder)

	rec = f.do(http.MethodPut, "/projects/proj-website-redesign", `{"status": "completed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	p, err = f.store.ProjectByID("proj-website-redesign")
	require.NoError(t, err)
	assert.Equal(t, "completed", p.Status)

	rec = f.do(http.MethodDelete, "/projects/proj-website-redesign", "")
	require.Equal(t, http.StatusOK, rec.Code)
	p, err = f.store.ProjectByID("proj-website-redesign")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPostProjectRequiresName(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/projects", `{"name": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutProjectRejectsBadStatus(t *testing.T) {
	f := newAPIFixture(t)
	f.do(http.MethodPost, "/projects", `{"name": "p"}`)
	rec := f.do(http.MethodPut, "/projects/proj-p", `{"status": "exploded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutMissingProjectIs404(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPut, "/projects/proj-ghost", `{"name": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProjectsWithoutFileReturnsEmpty(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body["projects"])
	assert.Empty(t, body["orphanedGoals"])
}

func TestPostGoalCreatesBreakdownAndReviewTasks(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/goals",
		`{"title": "Ship v2", "description": "full rewrite", "priority": "high"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	goalID := created["id"].(string)
	assert.True(t, strings.HasPrefix(goalID, "goal-"))

	g, err := f.store.GoalByID(goalID)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "active", g.Status)
	assert.Equal(t, "high", g.Priority)

	tasks, err := f.store.TasksForGoal(goalID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	var breakdown, review *store.ScheduledTask
	for _, task := range tasks {
		if task.ScheduleType == store.ScheduleOnce {
			breakdown = task
		} else {
			review = task
		}
	}
	require.NotNil(t, breakdown)
	require.NotNil(t, review)

	assert.Equal(t, "jid-main", breakdown.ChatJID)
	assert.Equal(t, store.ContextGroup, breakdown.ContextMode)
	require.NotNil(t, breakdown.TimeoutMs)
	assert.Equal(t, int64(600000), *breakdown.TimeoutMs)
	assert.Contains(t, breakdown.Prompt, goalID)
	assert.Contains(t, breakdown.Prompt, "Break this goal into actionable tasks")
	require.NotNil(t, breakdown.NextRun)

	assert.Equal(t, store.ScheduleCron, review.ScheduleType)
	assert.Equal(t, "0 9 * * *", review.ScheduleValue)
	require.NotNil(t, review.NextRun)
	assert.Contains(t, review.Prompt, "update_goal")
	assert.Contains(t, review.Prompt, "request_help")
	assert.Contains(t, review.Prompt, "send_message")
}

func TestPostGoalReviewCadenceFollowsPriority(t *testing.T) {
	f := newAPIFixture(t)

	cases := map[string]string{
		"medium":  "0 9 */3 * *",
		"low":     "0 9 * * 1",
		"unknown": "0 9 */3 * *",
	}
	for priority, wantCron := range cases {
		rec := f.do(http.MethodPost, "/goals", `{"title": "goal", "priority": "`+priority+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var created map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		tasks, err := f.store.TasksForGoal(created["id"].(string))
		require.NoError(t, err)
		found := false
		for _, task := range tasks {
			if task.ScheduleType == store.ScheduleCron {
				assert.Equal(t, wantCron, task.ScheduleValue, "priority %s", priority)
				found = true
			}
		}
		assert.True(t, found, "priority %s", priority)
	}
}

func TestPostGoalRequiresTitle(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/goals", `{"description": "no title"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGoalsIncludesTasks(t *testing.T) {
	f := newAPIFixture(t)
	f.do(http.MethodPost, "/goals", `{"title": "Ship v2"}`)

	rec := f.do(http.MethodGet, "/goals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var goals []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &goals))
	require.Len(t, goals, 1)
	assert.Equal(t, "Ship v2", goals[0]["title"])
	assert.Len(t, goals[0]["tasks"], 2)
}

func TestRespondToHelpRequest(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.store.CreateHelpRequest(&store.HelpRequest{
		ID:          "help-1",
		GroupFolder: "main",
		Title:       "Need API key",
		Description: "Blocked on credentials",
		RequestType: "access",
		Status:      "open",
		CreatedAt:   store.Now(),
		UpdatedAt:   store.Now(),
	}))

	rec := f.do(http.MethodPost, "/requests/help-1/respond", `{"response": "key is in the vault"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	h, err := f.store.HelpRequestByID("help-1")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "resolved", h.Status)
	require.NotNil(t, h.Response)
	assert.Equal(t, "key is in the vault", *h.Response)
	require.NotNil(t, h.ResolvedAt)
}

func TestRespondToMissingRequestIs404(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/requests/help-ghost/respond", `{"response": "hello"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRespondRequiresResponse(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/requests/help-1/respond", `{"response": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidJSONIs400(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/projects", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
