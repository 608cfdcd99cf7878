package store

import (
	"database/sql"
	"errors"
	"strings"
)

const goalColumns = `id, group_folder, project_id, title, description, status,
	priority, progress, deadline, created_at, updated_at, completed_at`

func scanGoal(row interface{ Scan(...any) error }) (*Goal, error) {
	var g Goal
	var projectID, description, deadline, completedAt sql.NullString
	err := row.Scan(
		&g.ID, &g.GroupFolder, &projectID, &g.Title, &description, &g.Status,
		&g.Priority, &g.Progress, &deadline, &g.CreatedAt, &g.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	g.ProjectID = strPtr(projectID)
	g.Description = strPtr(description)
	g.Deadline = strPtr(deadline)
	g.CompletedAt = strPtr(completedAt)
	return &g, nil
}

func (s *Store) queryGoals(query string, args ...any) ([]*Goal, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []*Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// CreateGoal inserts a new goal.
func (s *Store) CreateGoal(g *Goal) error {
	_, err := s.db.Exec(
		`INSERT INTO goals (`+goalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.GroupFolder, nullStr(g.ProjectID), g.Title, nullStr(g.Description),
		g.Status, g.Priority, g.Progress, nullStr(g.Deadline),
		g.CreatedAt, g.UpdatedAt, nullStr(g.CompletedAt))
	return err
}

// GoalByID returns the goal with the given id, or nil.
func (s *Store) GoalByID(id string) (*Goal, error) {
	g, err := scanGoal(s.db.QueryRow(
		`SELECT `+goalColumns+` FROM goals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// GoalsForGroup returns a group's goals, newest first.
func (s *Store) GoalsForGroup(groupFolder string) ([]*Goal, error) {
	return s.queryGoals(
		`SELECT `+goalColumns+` FROM goals
		 WHERE group_folder = ? ORDER BY created_at DESC`, groupFolder)
}

// AllGoals returns every goal, newest first.
func (s *Store) AllGoals() ([]*Goal, error) {
	return s.queryGoals(`SELECT ` + goalColumns + ` FROM goals ORDER BY created_at DESC`)
}

// GoalUpdate holds partial updates for a goal. Nil fields are unchanged.
type GoalUpdate struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	Progress    *int
	Deadline    *string
}

// UpdateGoal applies a partial update. Setting status to "completed"
// stamps completed_at.
func (s *Store) UpdateGoal(id string, u GoalUpdate) error {
	fields := []string{"updated_at = ?"}
	values := []any{Now()}

	if u.Status != nil {
		fields = append(fields, "status = ?")
		values = append(values, *u.Status)
		if *u.Status == "completed" {
			fields = append(fields, "completed_at = ?")
			values = append(values, Now())
		}
	}
	if u.Progress != nil {
		fields = append(fields, "progress = ?")
		values = append(values, *u.Progress)
	}
	if u.Description != nil {
		fields = append(fields, "description = ?")
		values = append(values, *u.Description)
	}
	if u.Priority != nil {
		fields = append(fields, "priority = ?")
		values = append(values, *u.Priority)
	}
	if u.Deadline != nil {
		fields = append(fields, "deadline = ?")
		values = append(values, *u.Deadline)
	}
	if u.Title != nil {
		fields = append(fields, "title = ?")
		values = append(values, *u.Title)
	}

	values = append(values, id)
	_, err := s.db.Exec(
		`UPDATE goals SET `+strings.Join(fields, ", ")+` WHERE id = ?`, values...)
	return err
}

// DeleteGoal removes a goal after unlinking its tasks.
func (s *Store) DeleteGoal(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE scheduled_tasks SET goal_id = NULL WHERE goal_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM goals WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
