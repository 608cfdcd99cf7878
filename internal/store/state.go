package store

import (
	"database/sql"
	"errors"
)

// RouterState reads a router state value by key. Returns "" when unset.
func (s *Store) RouterState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM router_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetRouterState upserts a router state value.
func (s *Store) SetRouterState(key, value string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO router_state (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Session returns the stored agent session id for a group folder, or "".
func (s *Store) Session(groupFolder string) (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT session_id FROM sessions WHERE group_folder = ?`, groupFolder).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// SetSession upserts the agent session id for a group folder.
func (s *Store) SetSession(groupFolder, sessionID string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO sessions (group_folder, session_id, updated_at)
		 VALUES (?, ?, ?)`, groupFolder, sessionID, Now())
	return err
}

// AllSessions returns every stored session id keyed by group folder.
func (s *Store) AllSessions() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT group_folder, session_id FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make(map[string]string)
	for rows.Next() {
		var folder, id string
		if err := rows.Scan(&folder, &id); err != nil {
			return nil, err
		}
		sessions[folder] = id
	}
	return sessions, rows.Err()
}

// ClearSession removes the stored session for a group folder.
func (s *Store) ClearSession(groupFolder string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE group_folder = ?`, groupFolder)
	return err
}
