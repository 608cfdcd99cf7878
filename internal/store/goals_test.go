package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoal(id, folder string) *Goal {
	return &Goal{
		ID:          id,
		GroupFolder: folder,
		Title:       "ship the release",
		Status:      "active",
		Priority:    "medium",
		CreatedAt:   Now(),
		UpdatedAt:   Now(),
	}
}

func TestCreateAndGetGoal(t *testing.T) {
	s := testStore(t)

	goal := newGoal("goal-1", "main")
	desc := "cut a release candidate and verify it"
	goal.Description = &desc
	require.NoError(t, s.CreateGoal(goal))

	got, err := s.GoalByID("goal-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ship the release", got.Title)
	require.NotNil(t, got.Description)
	assert.Equal(t, desc, *got.Description)
	assert.Equal(t, 0, got.Progress)

	missing, err := s.GoalByID("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateGoalCompletedStampsTimestamp(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.CreateGoal(newGoal("goal-1", "main")))

	completed := "completed"
	progress := 100
	require.NoError(t, s.UpdateGoal("goal-1", GoalUpdate{
		Status:   &completed,
		Progress: &progress,
	}))

	got, err := s.GoalByID("goal-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.CompletedAt)
}

func TestUpdateGoalPartialLeavesCompletedAtUnset(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.CreateGoal(newGoal("goal-1", "main")))

	progress := 40
	require.NoError(t, s.UpdateGoal("goal-1", GoalUpdate{Progress: &progress}))

	got, err := s.GoalByID("goal-1")
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
	assert.Nil(t, got.CompletedAt)
}

func TestDeleteGoalUnlinksTasks(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.CreateGoal(newGoal("goal-1", "main")))

	task := newTask("task-1", "main")
	goalID := "goal-1"
	task.GoalID = &goalID
	require.NoError(t, s.CreateTask(task))

	require.NoError(t, s.DeleteGoal("goal-1"))

	got, err := s.GoalByID("goal-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	orphan, err := s.TaskByID("task-1")
	require.NoError(t, err)
	require.NotNil(t, orphan)
	assert.Nil(t, orphan.GoalID)
}

func TestGoalsForGroup(t *testing.T) {
	s := testStore(t)

	a := newGoal("goal-a", "main")
	a.CreatedAt = "2026-01-01T00:00:00Z"
	require.NoError(t, s.CreateGoal(a))

	b := newGoal("goal-b", "main")
	b.CreatedAt = "2026-01-02T00:00:00Z"
	require.NoError(t, s.CreateGoal(b))

	other := newGoal("goal-c", "family")
	require.NoError(t, s.CreateGoal(other))

	goals, err := s.GoalsForGroup("main")
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, "goal-b", goals[0].ID)
	assert.Equal(t, "goal-a", goals[1].ID)
}

func TestProjectLifecycle(t *testing.T) {
	s := testStore(t)

	p := &Project{
		ID:          "proj-1",
		GroupFolder: "main",
		Name:        "website",
		Status:      "active",
		CreatedAt:   Now(),
		UpdatedAt:   Now(),
	}
	require.NoError(t, s.CreateProject(p))

	got, err := s.ProjectByID("proj-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "website", got.Name)

	newName := "website v2"
	require.NoError(t, s.UpdateProject("proj-1", ProjectUpdate{Name: &newName}))
	got, err = s.ProjectByID("proj-1")
	require.NoError(t, err)
	assert.Equal(t, "website v2", got.Name)

	all, err := s.AllProjects()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeleteProjectUnlinksGoalsAndRequests(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.CreateProject(&Project{
		ID: "proj-1", GroupFolder: "main", Name: "website", Status: "active",
		CreatedAt: Now(), UpdatedAt: Now(),
	}))

	projectID := "proj-1"
	goal := newGoal("goal-1", "main")
	goal.ProjectID = &projectID
	require.NoError(t, s.CreateGoal(goal))

	require.NoError(t, s.CreateHelpRequest(&HelpRequest{
		ID: "help-1", GroupFolder: "main", ProjectID: &projectID,
		Title: "need access", Description: "grant repo access",
		RequestType: "access", Status: "open",
		CreatedAt: Now(), UpdatedAt: Now(),
	}))

	require.NoError(t, s.DeleteProject("proj-1"))

	g, err := s.GoalByID("goal-1")
	require.NoError(t, err)
	assert.Nil(t, g.ProjectID)

	h, err := s.HelpRequestByID("help-1")
	require.NoError(t, err)
	assert.Nil(t, h.ProjectID)
}

func TestHelpRequestRespond(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.CreateHelpRequest(&HelpRequest{
		ID: "help-1", GroupFolder: "main",
		Title: "blocked on API key", Description: "the weather API needs a key",
		RequestType: "blocker", Status: "open",
		CreatedAt: Now(), UpdatedAt: Now(),
	}))

	open, err := s.OpenHelpRequests()
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, s.RespondToHelpRequest("help-1", "key added to the group env"))

	got, err := s.HelpRequestByID("help-1")
	require.NoError(t, err)
	assert.Equal(t, "resolved", got.Status)
	require.NotNil(t, got.Response)
	assert.Equal(t, "key added to the group env", *got.Response)
	assert.NotNil(t, got.ResolvedAt)

	open, err = s.OpenHelpRequests()
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAllHelpRequestsOpenFirst(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.CreateHelpRequest(&HelpRequest{
		ID: "resolved-1", GroupFolder: "main", Title: "old", Description: "d",
		RequestType: "question", Status: "resolved",
		CreatedAt: "2026-01-02T00:00:00Z", UpdatedAt: Now(),
	}))
	require.NoError(t, s.CreateHelpRequest(&HelpRequest{
		ID: "open-1", GroupFolder: "main", Title: "new", Description: "d",
		RequestType: "question", Status: "open",
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: Now(),
	}))

	all, err := s.AllHelpRequests()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "open-1", all[0].ID)
	assert.Equal(t, "resolved-1", all[1].ID)
}

func TestHelpRequestsForGroup(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.CreateHelpRequest(&HelpRequest{
		ID: "family-resolved", GroupFolder: "family", Title: "old", Description: "d",
		RequestType: "question", Status: "resolved",
		CreatedAt: "2026-01-02T00:00:00Z", UpdatedAt: Now(),
	}))
	require.NoError(t, s.CreateHelpRequest(&HelpRequest{
		ID: "family-open", GroupFolder: "family", Title: "new", Description: "d",
		RequestType: "blocker", Status: "open",
		CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: Now(),
	}))
	require.NoError(t, s.CreateHelpRequest(&HelpRequest{
		ID: "main-open", GroupFolder: "main", Title: "other", Description: "d",
		RequestType: "question", Status: "open",
		CreatedAt: Now(), UpdatedAt: Now(),
	}))

	got, err := s.HelpRequestsForGroup("family")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "family-open", got[0].ID)
	assert.Equal(t, "family-resolved", got[1].ID)
}
