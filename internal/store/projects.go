package store

import (
	"database/sql"
	"errors"
	"strings"
)

const projectColumns = `id, group_folder, name, description, status, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var p Project
	var description sql.NullString
	err := row.Scan(&p.ID, &p.GroupFolder, &p.Name, &description, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Description = strPtr(description)
	return &p, nil
}

// CreateProject inserts a new project.
func (s *Store) CreateProject(p *Project) error {
	_, err := s.db.Exec(
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.GroupFolder, p.Name, nullStr(p.Description), p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

// ProjectByID returns the project with the given id, or nil.
func (s *Store) ProjectByID(id string) (*Project, error) {
	p, err := scanProject(s.db.QueryRow(
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// AllProjects returns every project, newest first.
func (s *Store) AllProjects() ([]*Project, error) {
	rows, err := s.db.Query(`SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ProjectUpdate holds partial updates for a project. Nil fields are unchanged.
type ProjectUpdate struct {
	Name        *string
	Description *string
	Status      *string
}

// UpdateProject applies a partial update.
func (s *Store) UpdateProject(id string, u ProjectUpdate) error {
	fields := []string{"updated_at = ?"}
	values := []any{Now()}

	if u.Name != nil {
		fields = append(fields, "name = ?")
		values = append(values, *u.Name)
	}
	if u.Description != nil {
		fields = append(fields, "description = ?")
		values = append(values, *u.Description)
	}
	if u.Status != nil {
		fields = append(fields, "status = ?")
		values = append(values, *u.Status)
	}

	values = append(values, id)
	_, err := s.db.Exec(
		`UPDATE projects SET `+strings.Join(fields, ", ")+` WHERE id = ?`, values...)
	return err
}

// DeleteProject removes a project after unlinking its goals and help requests.
func (s *Store) DeleteProject(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE goals SET project_id = NULL WHERE project_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE help_requests SET project_id = NULL WHERE project_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
