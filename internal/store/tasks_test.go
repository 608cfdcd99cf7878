package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(id, folder string) *ScheduledTask {
	return &ScheduledTask{
		ID:            id,
		GroupFolder:   folder,
		ChatJID:       folder + "@g.us",
		Prompt:        "check the news",
		ScheduleType:  ScheduleCron,
		ScheduleValue: "0 9 * * *",
		Status:        TaskActive,
		CreatedAt:     Now(),
	}
}

func TestCreateAndGetTask(t *testing.T) {
	s := testStore(t)

	task := newTask("task-1", "main")
	nextRun := "2026-01-01T09:00:00Z"
	task.NextRun = &nextRun
	require.NoError(t, s.CreateTask(task))

	got, err := s.TaskByID("task-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "check the news", got.Prompt)
	assert.Equal(t, ScheduleCron, got.ScheduleType)
	assert.Equal(t, ContextIsolated, got.ContextMode)
	require.NotNil(t, got.NextRun)
	assert.Equal(t, nextRun, *got.NextRun)
}

func TestTaskByIDMissing(t *testing.T) {
	s := testStore(t)

	got, err := s.TaskByID("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDueTasks(t *testing.T) {
	s := testStore(t)

	past := "2026-01-01T00:00:00Z"
	future := "2027-01-01T00:00:00Z"

	due := newTask("due", "main")
	due.NextRun = &past
	require.NoError(t, s.CreateTask(due))

	later := newTask("later", "main")
	later.NextRun = &future
	require.NoError(t, s.CreateTask(later))

	paused := newTask("paused", "main")
	paused.NextRun = &past
	paused.Status = TaskPaused
	require.NoError(t, s.CreateTask(paused))

	// A chained child waits with no next_run until its parent succeeds.
	dormant := newTask("dormant", "main")
	parent := "due"
	dormant.DependsOn = &parent
	require.NoError(t, s.CreateTask(dormant))

	tasks, err := s.DueTasks("2026-06-01T00:00:00Z")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "due", tasks[0].ID)
}

func TestDueTasksOrderedByNextRun(t *testing.T) {
	s := testStore(t)

	first := "2026-01-01T08:00:00Z"
	second := "2026-01-01T09:00:00Z"

	b := newTask("b", "main")
	b.NextRun = &second
	require.NoError(t, s.CreateTask(b))

	a := newTask("a", "main")
	a.NextRun = &first
	require.NoError(t, s.CreateTask(a))

	tasks, err := s.DueTasks("2026-06-01T00:00:00Z")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].ID)
	assert.Equal(t, "b", tasks[1].ID)
}

func TestUpdateTaskAfterRunRecurring(t *testing.T) {
	s := testStore(t)

	task := newTask("task-1", "main")
	require.NoError(t, s.CreateTask(task))

	next := "2026-02-01T09:00:00Z"
	require.NoError(t, s.UpdateTaskAfterRun("task-1", &next, "Completed"))

	got, err := s.TaskByID("task-1")
	require.NoError(t, err)
	assert.Equal(t, TaskActive, got.Status)
	require.NotNil(t, got.NextRun)
	assert.Equal(t, next, *got.NextRun)
	require.NotNil(t, got.LastResult)
	assert.Equal(t, "Completed", *got.LastResult)
	assert.NotNil(t, got.LastRun)
}

func TestUpdateTaskAfterRunOneShotCompletes(t *testing.T) {
	s := testStore(t)

	task := newTask("once-1", "main")
	task.ScheduleType = ScheduleOnce
	task.ScheduleValue = "2026-01-01T09:00:00Z"
	require.NoError(t, s.CreateTask(task))

	require.NoError(t, s.UpdateTaskAfterRun("once-1", nil, "done"))

	got, err := s.TaskByID("once-1")
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, got.Status)
	assert.Nil(t, got.NextRun)
}

func TestUpdateTaskPartial(t *testing.T) {
	s := testStore(t)

	task := newTask("task-1", "main")
	require.NoError(t, s.CreateTask(task))

	paused := TaskPaused
	require.NoError(t, s.UpdateTask("task-1", TaskUpdate{Status: &paused}))

	got, err := s.TaskByID("task-1")
	require.NoError(t, err)
	assert.Equal(t, TaskPaused, got.Status)
	assert.Equal(t, "check the news", got.Prompt)

	// SetNextRun with a nil value clears the column.
	next := "2026-03-01T00:00:00Z"
	require.NoError(t, s.UpdateTask("task-1", TaskUpdate{NextRun: &next, SetNextRun: true}))
	got, err = s.TaskByID("task-1")
	require.NoError(t, err)
	require.NotNil(t, got.NextRun)

	require.NoError(t, s.UpdateTask("task-1", TaskUpdate{SetNextRun: true}))
	got, err = s.TaskByID("task-1")
	require.NoError(t, err)
	assert.Nil(t, got.NextRun)
}

func TestDeleteTaskRemovesRunLogs(t *testing.T) {
	s := testStore(t)

	task := newTask("task-1", "main")
	require.NoError(t, s.CreateTask(task))

	result := "ok"
	require.NoError(t, s.LogTaskRun(&TaskRunLog{
		TaskID:     "task-1",
		RunAt:      Now(),
		DurationMs: 1200,
		Status:     "success",
		Result:     &result,
	}))

	require.NoError(t, s.DeleteTask("task-1"))

	got, err := s.TaskByID("task-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	logs, err := s.RunLogsForTask("task-1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestLatestRunResult(t *testing.T) {
	s := testStore(t)

	task := newTask("task-1", "main")
	require.NoError(t, s.CreateTask(task))

	old := "old"
	recent := "recent"
	require.NoError(t, s.LogTaskRun(&TaskRunLog{
		TaskID: "task-1", RunAt: "2026-01-01T00:00:00Z", DurationMs: 10,
		Status: "success", Result: &old,
	}))
	require.NoError(t, s.LogTaskRun(&TaskRunLog{
		TaskID: "task-1", RunAt: "2026-01-02T00:00:00Z", DurationMs: 20,
		Status: "success", Result: &recent,
	}))

	got, err := s.LatestRunResult("task-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "recent", *got.Result)

	none, err := s.LatestRunResult("no-runs")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestChildTasks(t *testing.T) {
	s := testStore(t)

	parent := newTask("parent", "main")
	require.NoError(t, s.CreateTask(parent))

	parentID := "parent"
	childA := newTask("child-a", "main")
	childA.DependsOn = &parentID
	childA.CreatedAt = "2026-01-01T00:00:00Z"
	require.NoError(t, s.CreateTask(childA))

	childB := newTask("child-b", "main")
	childB.DependsOn = &parentID
	childB.CreatedAt = "2026-01-02T00:00:00Z"
	require.NoError(t, s.CreateTask(childB))

	children, err := s.ChildTasks("parent")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "child-a", children[0].ID)
	assert.Equal(t, "child-b", children[1].ID)
}
