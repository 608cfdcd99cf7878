package store

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// migrateJSONState imports legacy JSON state files left over from earlier
// deployments. Each consumed file is renamed with a .migrated suffix so the
// import runs at most once. Unreadable files are skipped.
func (s *Store) migrateJSONState() error {
	loadFile := func(name string, v any) bool {
		path := filepath.Join(s.dataDir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return false
		}
		if err := os.Rename(path, path+".migrated"); err != nil {
			return false
		}
		return true
	}

	var routerState struct {
		LastTimestamp      string            `json:"last_timestamp"`
		LastAgentTimestamp map[string]string `json:"last_agent_timestamp"`
	}
	if loadFile("router_state.json", &routerState) {
		if routerState.LastTimestamp != "" {
			if err := s.SetRouterState("last_timestamp", routerState.LastTimestamp); err != nil {
				return err
			}
		}
		if routerState.LastAgentTimestamp != nil {
			raw, err := json.Marshal(routerState.LastAgentTimestamp)
			if err != nil {
				return err
			}
			if err := s.SetRouterState("last_agent_timestamp", string(raw)); err != nil {
				return err
			}
		}
	}

	var sessions map[string]string
	if loadFile("sessions.json", &sessions) {
		for folder, sessionID := range sessions {
			if err := s.SetSession(folder, sessionID); err != nil {
				return err
			}
		}
	}

	var groups map[string]*RegisteredGroup
	if loadFile("registered_groups.json", &groups) {
		for jid, g := range groups {
			g.JID = jid
			if err := s.RegisterGroup(g); err != nil {
				return err
			}
		}
	}

	return nil
}
