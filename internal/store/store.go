// Package store is the durable state layer. It wraps a single SQLite
// database holding tasks, goals, projects, help requests, registered
// groups, chat history, and the router's crash-recovery cursors.
//
// Schema evolution is additive: new columns are applied with ALTER TABLE
// at startup and "duplicate column" failures are ignored, so older
// databases upgrade in place.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DBFilename is the SQLite file created under the data directory.
const DBFilename = "nanoclaw.db"

// Store provides typed accessors over the SQLite database.
type Store struct {
	db      *sql.DB
	dataDir string
}

// Open opens (or creates) the database under dataDir, applies the schema
// and migrations, and imports legacy JSON state files if present.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, DBFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// WAL allows the polling loops to read while a job writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db, dataDir: dataDir}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrateJSONState(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chats (
		jid               TEXT PRIMARY KEY,
		name              TEXT,
		last_message_time TEXT
	);
	CREATE TABLE IF NOT EXISTS messages (
		id          TEXT,
		chat_jid    TEXT,
		sender      TEXT,
		sender_name TEXT,
		content     TEXT,
		timestamp   TEXT,
		is_from_me  INTEGER,
		PRIMARY KEY (id, chat_jid)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

	CREATE TABLE IF NOT EXISTS scheduled_tasks (
		id             TEXT PRIMARY KEY,
		group_folder   TEXT NOT NULL,
		chat_jid       TEXT NOT NULL,
		prompt         TEXT NOT NULL,
		schedule_type  TEXT NOT NULL,
		schedule_value TEXT NOT NULL,
		context_mode   TEXT DEFAULT 'isolated',
		next_run       TEXT,
		last_run       TEXT,
		last_result    TEXT,
		status         TEXT DEFAULT 'active',
		created_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON scheduled_tasks(status, next_run);

	CREATE TABLE IF NOT EXISTS task_run_logs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id     TEXT NOT NULL,
		run_at      TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		status      TEXT NOT NULL,
		result      TEXT,
		error       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_task_run_logs ON task_run_logs(task_id, run_at);

	CREATE TABLE IF NOT EXISTS goals (
		id           TEXT PRIMARY KEY,
		group_folder TEXT NOT NULL,
		title        TEXT NOT NULL,
		description  TEXT,
		status       TEXT DEFAULT 'active',
		priority     TEXT DEFAULT 'medium',
		progress     INTEGER DEFAULT 0,
		deadline     TEXT,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_goals_group ON goals(group_folder);
	CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);

	CREATE TABLE IF NOT EXISTS projects (
		id           TEXT PRIMARY KEY,
		group_folder TEXT NOT NULL,
		name         TEXT NOT NULL,
		description  TEXT,
		status       TEXT DEFAULT 'active',
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_group ON projects(group_folder);

	CREATE TABLE IF NOT EXISTS help_requests (
		id           TEXT PRIMARY KEY,
		group_folder TEXT NOT NULL,
		goal_id      TEXT,
		task_id      TEXT,
		title        TEXT NOT NULL,
		description  TEXT NOT NULL,
		request_type TEXT DEFAULT 'question',
		status       TEXT DEFAULT 'open',
		response     TEXT,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		resolved_at  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_help_requests_status ON help_requests(status);

	CREATE TABLE IF NOT EXISTS router_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		group_folder TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL,
		updated_at   TEXT
	);
	CREATE TABLE IF NOT EXISTS registered_groups (
		jid              TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		folder           TEXT NOT NULL UNIQUE,
		trigger_pattern  TEXT NOT NULL,
		added_at         TEXT NOT NULL,
		container_config TEXT,
		requires_trigger INTEGER DEFAULT 1
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Additive columns for databases created by older versions.
	migrations := []string{
		`ALTER TABLE scheduled_tasks ADD COLUMN goal_id TEXT`,
		`ALTER TABLE scheduled_tasks ADD COLUMN depends_on TEXT`,
		`ALTER TABLE scheduled_tasks ADD COLUMN timeout INTEGER`,
		`ALTER TABLE scheduled_tasks ADD COLUMN parent_task_id TEXT`,
		`ALTER TABLE help_requests ADD COLUMN project_id TEXT`,
		`ALTER TABLE goals ADD COLUMN project_id TEXT`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			if !isDuplicateColumn(err) {
				return fmt.Errorf("migration failed (%s): %w", m, err)
			}
		}
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column")
}

// TimeFormat is the canonical timestamp layout. Fixed-width millisecond
// precision keeps lexical string comparison equal to time comparison,
// which the due-task query and cursor logic rely on.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// Now returns the current time formatted the way every timestamp in the
// store is formatted.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders a time in the canonical store layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a stored timestamp, accepting RFC 3339 variants.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func intPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
