package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const taskColumns = `id, group_folder, chat_jid, prompt, schedule_type, schedule_value,
	context_mode, next_run, last_run, last_result, status, created_at,
	goal_id, depends_on, timeout, parent_task_id`

func scanTask(row interface{ Scan(...any) error }) (*ScheduledTask, error) {
	var t ScheduledTask
	var nextRun, lastRun, lastResult, goalID, dependsOn, parentTaskID sql.NullString
	var timeout sql.NullInt64
	err := row.Scan(
		&t.ID, &t.GroupFolder, &t.ChatJID, &t.Prompt, &t.ScheduleType, &t.ScheduleValue,
		&t.ContextMode, &nextRun, &lastRun, &lastResult, &t.Status, &t.CreatedAt,
		&goalID, &dependsOn, &timeout, &parentTaskID,
	)
	if err != nil {
		return nil, err
	}
	t.NextRun = strPtr(nextRun)
	t.LastRun = strPtr(lastRun)
	t.LastResult = strPtr(lastResult)
	t.GoalID = strPtr(goalID)
	t.DependsOn = strPtr(dependsOn)
	t.TimeoutMs = intPtr(timeout)
	t.ParentTaskID = strPtr(parentTaskID)
	return &t, nil
}

func (s *Store) queryTasks(query string, args ...any) ([]*ScheduledTask, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateTask inserts a new scheduled task.
func (s *Store) CreateTask(t *ScheduledTask) error {
	if t.ContextMode == "" {
		t.ContextMode = ContextIsolated
	}
	_, err := s.db.Exec(
		`INSERT INTO scheduled_tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.GroupFolder, t.ChatJID, t.Prompt, t.ScheduleType, t.ScheduleValue,
		t.ContextMode, nullStr(t.NextRun), nullStr(t.LastRun), nullStr(t.LastResult),
		t.Status, t.CreatedAt, nullStr(t.GoalID), nullStr(t.DependsOn),
		nullInt(t.TimeoutMs), nullStr(t.ParentTaskID),
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// TaskByID returns the task with the given id, or nil if it does not exist.
func (s *Store) TaskByID(id string) (*ScheduledTask, error) {
	t, err := scanTask(s.db.QueryRow(
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// TasksForGroup returns a group's tasks, newest first.
func (s *Store) TasksForGroup(groupFolder string) ([]*ScheduledTask, error) {
	return s.queryTasks(
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE group_folder = ? ORDER BY created_at DESC`, groupFolder)
}

// AllTasks returns every task, newest first.
func (s *Store) AllTasks() ([]*ScheduledTask, error) {
	return s.queryTasks(
		`SELECT ` + taskColumns + ` FROM scheduled_tasks ORDER BY created_at DESC`)
}

// DueTasks returns active tasks whose next_run is at or before now,
// soonest first. Tasks with NULL next_run (dormant chained children)
// are never selected.
func (s *Store) DueTasks(now string) ([]*ScheduledTask, error) {
	return s.queryTasks(
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE status = 'active' AND next_run IS NOT NULL AND next_run <= ?
		 ORDER BY next_run`, now)
}

// TaskUpdate holds partial updates for a task. Nil fields are unchanged.
type TaskUpdate struct {
	Prompt        *string
	ScheduleType  *ScheduleType
	ScheduleValue *string
	NextRun       *string
	SetNextRun    bool // distinguishes "set to NULL" from "leave alone"
	Status        *TaskStatus
}

// UpdateTask applies a partial update to a task.
func (s *Store) UpdateTask(id string, u TaskUpdate) error {
	var fields []string
	var values []any

	if u.Prompt != nil {
		fields = append(fields, "prompt = ?")
		values = append(values, *u.Prompt)
	}
	if u.ScheduleType != nil {
		fields = append(fields, "schedule_type = ?")
		values = append(values, *u.ScheduleType)
	}
	if u.ScheduleValue != nil {
		fields = append(fields, "schedule_value = ?")
		values = append(values, *u.ScheduleValue)
	}
	if u.SetNextRun {
		fields = append(fields, "next_run = ?")
		values = append(values, nullStr(u.NextRun))
	}
	if u.Status != nil {
		fields = append(fields, "status = ?")
		values = append(values, *u.Status)
	}

	if len(fields) == 0 {
		return nil
	}

	values = append(values, id)
	_, err := s.db.Exec(
		`UPDATE scheduled_tasks SET `+strings.Join(fields, ", ")+` WHERE id = ?`,
		values...)
	return err
}

// UpdateTaskAfterRun persists the post-run bookkeeping atomically:
// next_run, last_run, last_result. A NULL nextRun marks the task
// completed (one-shot schedules do not recur).
func (s *Store) UpdateTaskAfterRun(id string, nextRun *string, lastResult string) error {
	_, err := s.db.Exec(
		`UPDATE scheduled_tasks
		 SET next_run = ?, last_run = ?, last_result = ?,
		     status = CASE WHEN ? IS NULL THEN 'completed' ELSE status END
		 WHERE id = ?`,
		nullStr(nextRun), Now(), lastResult, nullStr(nextRun), id)
	return err
}

// DeleteTask removes a task and its run log.
func (s *Store) DeleteTask(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_run_logs WHERE task_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM scheduled_tasks WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// LogTaskRun appends one execution record. Rows are never mutated.
func (s *Store) LogTaskRun(l *TaskRunLog) error {
	_, err := s.db.Exec(
		`INSERT INTO task_run_logs (task_id, run_at, duration_ms, status, result, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.TaskID, l.RunAt, l.DurationMs, l.Status, nullStr(l.Result), nullStr(l.Error))
	return err
}

// LatestRunResult returns the most recent run log for a task, or nil.
func (s *Store) LatestRunResult(taskID string) (*TaskRunLog, error) {
	var l TaskRunLog
	var result, errText sql.NullString
	err := s.db.QueryRow(
		`SELECT task_id, run_at, duration_ms, status, result, error
		 FROM task_run_logs WHERE task_id = ? ORDER BY run_at DESC LIMIT 1`,
		taskID,
	).Scan(&l.TaskID, &l.RunAt, &l.DurationMs, &l.Status, &result, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.Result = strPtr(result)
	l.Error = strPtr(errText)
	return &l, nil
}

// RunLogsForTask returns all run logs for a task, newest first.
func (s *Store) RunLogsForTask(taskID string) ([]*TaskRunLog, error) {
	rows, err := s.db.Query(
		`SELECT task_id, run_at, duration_ms, status, result, error
		 FROM task_run_logs WHERE task_id = ? ORDER BY run_at DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*TaskRunLog
	for rows.Next() {
		var l TaskRunLog
		var result, errText sql.NullString
		if err := rows.Scan(&l.TaskID, &l.RunAt, &l.DurationMs, &l.Status, &result, &errText); err != nil {
			return nil, err
		}
		l.Result = strPtr(result)
		l.Error = strPtr(errText)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// ChildTasks returns tasks whose depends_on equals parentTaskID,
// oldest first.
func (s *Store) ChildTasks(parentTaskID string) ([]*ScheduledTask, error) {
	return s.queryTasks(
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE depends_on = ? ORDER BY created_at`, parentTaskID)
}

// TasksForGoal returns tasks linked to a goal, newest first.
func (s *Store) TasksForGoal(goalID string) ([]*ScheduledTask, error) {
	return s.queryTasks(
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE goal_id = ? ORDER BY created_at DESC`, goalID)
}
