package store

import (
	"database/sql"
	"errors"
	"strings"
)

const helpColumns = `id, group_folder, goal_id, task_id, project_id, title, description,
	request_type, status, response, created_at, updated_at, resolved_at`

func scanHelpRequest(row interface{ Scan(...any) error }) (*HelpRequest, error) {
	var h HelpRequest
	var goalID, taskID, projectID, response, resolvedAt sql.NullString
	err := row.Scan(
		&h.ID, &h.GroupFolder, &goalID, &taskID, &projectID, &h.Title, &h.Description,
		&h.RequestType, &h.Status, &response, &h.CreatedAt, &h.UpdatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	h.GoalID = strPtr(goalID)
	h.TaskID = strPtr(taskID)
	h.ProjectID = strPtr(projectID)
	h.Response = strPtr(response)
	h.ResolvedAt = strPtr(resolvedAt)
	return &h, nil
}

// CreateHelpRequest inserts a new help request.
func (s *Store) CreateHelpRequest(h *HelpRequest) error {
	_, err := s.db.Exec(
		`INSERT INTO help_requests (`+helpColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.GroupFolder, nullStr(h.GoalID), nullStr(h.TaskID), nullStr(h.ProjectID),
		h.Title, h.Description, h.RequestType, h.Status, nullStr(h.Response),
		h.CreatedAt, h.UpdatedAt, nullStr(h.ResolvedAt))
	return err
}

// HelpRequestByID returns the help request with the given id, or nil.
func (s *Store) HelpRequestByID(id string) (*HelpRequest, error) {
	h, err := scanHelpRequest(s.db.QueryRow(
		`SELECT `+helpColumns+` FROM help_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

// OpenHelpRequests returns unresolved requests, newest first.
func (s *Store) OpenHelpRequests() ([]*HelpRequest, error) {
	return s.queryHelpRequests(
		`SELECT ` + helpColumns + ` FROM help_requests
		 WHERE status = 'open' ORDER BY created_at DESC`)
}

// AllHelpRequests returns every help request, open ones first.
func (s *Store) AllHelpRequests() ([]*HelpRequest, error) {
	return s.queryHelpRequests(
		`SELECT ` + helpColumns + ` FROM help_requests
		 ORDER BY CASE status WHEN 'open' THEN 0 ELSE 1 END, created_at DESC`)
}

// HelpRequestsForGroup returns one group's help requests, open ones first.
func (s *Store) HelpRequestsForGroup(groupFolder string) ([]*HelpRequest, error) {
	return s.queryHelpRequests(
		`SELECT `+helpColumns+` FROM help_requests
		 WHERE group_folder = ?
		 ORDER BY CASE status WHEN 'open' THEN 0 ELSE 1 END, created_at DESC`, groupFolder)
}

// HelpRequestsForGoal returns a goal's help requests, newest first.
func (s *Store) HelpRequestsForGoal(goalID string) ([]*HelpRequest, error) {
	return s.queryHelpRequests(
		`SELECT `+helpColumns+` FROM help_requests
		 WHERE goal_id = ? ORDER BY created_at DESC`, goalID)
}

func (s *Store) queryHelpRequests(query string, args ...any) ([]*HelpRequest, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*HelpRequest
	for rows.Next() {
		h, err := scanHelpRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, h)
	}
	return reqs, rows.Err()
}

// HelpRequestUpdate holds partial updates for a help request.
type HelpRequestUpdate struct {
	Status     *string
	Response   *string
	ResolvedAt *string
}

// UpdateHelpRequest applies a partial update and stamps updated_at.
func (s *Store) UpdateHelpRequest(id string, u HelpRequestUpdate) error {
	fields := []string{"updated_at = ?"}
	values := []any{Now()}

	if u.Status != nil {
		fields = append(fields, "status = ?")
		values = append(values, *u.Status)
	}
	if u.Response != nil {
		fields = append(fields, "response = ?")
		values = append(values, *u.Response)
	}
	if u.ResolvedAt != nil {
		fields = append(fields, "resolved_at = ?")
		values = append(values, *u.ResolvedAt)
	}

	values = append(values, id)
	_, err := s.db.Exec(
		`UPDATE help_requests SET `+strings.Join(fields, ", ")+` WHERE id = ?`, values...)
	return err
}

// RespondToHelpRequest records a response and resolves the request.
func (s *Store) RespondToHelpRequest(id, response string) error {
	resolved := "resolved"
	now := Now()
	return s.UpdateHelpRequest(id, HelpRequestUpdate{
		Status:     &resolved,
		Response:   &response,
		ResolvedAt: &now,
	})
}
