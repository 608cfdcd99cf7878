package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// RegisterGroup inserts or replaces a registered group keyed by its chat JID.
func (s *Store) RegisterGroup(g *RegisteredGroup) error {
	var cc sql.NullString
	if g.ContainerConfig != nil {
		raw, err := json.Marshal(g.ContainerConfig)
		if err != nil {
			return fmt.Errorf("marshal container config: %w", err)
		}
		cc = sql.NullString{String: string(raw), Valid: true}
	}
	requires := 1
	if !g.RequiresTrigger {
		requires = 0
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO registered_groups
		 (jid, name, folder, trigger_pattern, added_at, container_config, requires_trigger)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.JID, g.Name, g.Folder, g.TriggerPattern, g.AddedAt, cc, requires)
	return err
}

// UnregisterGroup removes a group registration.
func (s *Store) UnregisterGroup(jid string) error {
	_, err := s.db.Exec(`DELETE FROM registered_groups WHERE jid = ?`, jid)
	return err
}

// RegisteredGroups returns all registrations keyed by JID.
func (s *Store) RegisteredGroups() (map[string]*RegisteredGroup, error) {
	rows, err := s.db.Query(
		`SELECT jid, name, folder, trigger_pattern, added_at, container_config, requires_trigger
		 FROM registered_groups`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make(map[string]*RegisteredGroup)
	for rows.Next() {
		g, err := scanRegisteredGroup(rows)
		if err != nil {
			return nil, err
		}
		groups[g.JID] = g
	}
	return groups, rows.Err()
}

// GroupByJID returns the registration for a chat JID, or nil.
func (s *Store) GroupByJID(jid string) (*RegisteredGroup, error) {
	g, err := scanRegisteredGroup(s.db.QueryRow(
		`SELECT jid, name, folder, trigger_pattern, added_at, container_config, requires_trigger
		 FROM registered_groups WHERE jid = ?`, jid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// GroupByFolder returns the registration for a group folder, or nil.
func (s *Store) GroupByFolder(folder string) (*RegisteredGroup, error) {
	g, err := scanRegisteredGroup(s.db.QueryRow(
		`SELECT jid, name, folder, trigger_pattern, added_at, container_config, requires_trigger
		 FROM registered_groups WHERE folder = ?`, folder))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func scanRegisteredGroup(row interface{ Scan(...any) error }) (*RegisteredGroup, error) {
	var g RegisteredGroup
	var cc sql.NullString
	var requires int
	err := row.Scan(&g.JID, &g.Name, &g.Folder, &g.TriggerPattern, &g.AddedAt, &cc, &requires)
	if err != nil {
		return nil, err
	}
	g.RequiresTrigger = requires != 0
	if cc.Valid && cc.String != "" {
		var conf GroupContainerConfig
		if err := json.Unmarshal([]byte(cc.String), &conf); err != nil {
			return nil, fmt.Errorf("unmarshal container config for %s: %w", g.JID, err)
		}
		g.ContainerConfig = &conf
	}
	return &g, nil
}
