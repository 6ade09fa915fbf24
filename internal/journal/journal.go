// Package journal records coordination events (tool calls, task
// transitions, spawns and kills) in a local sqlite database. The journal is
// observability only: coordination never depends on it, and a journal that
// fails to open degrades to a no-op.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	team TEXT NOT NULL DEFAULT '',
	agent TEXT NOT NULL DEFAULT '',
	event TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_team_ts ON events(team, ts);
`

// Event is one journal row.
type Event struct {
	TS     int64  `json:"ts"`
	Team   string `json:"team"`
	Agent  string `json:"agent"`
	Event  string `json:"event"`
	Detail string `json:"detail"`
}

// Journal is a single-writer event log. The zero value (and a nil *Journal)
// is a no-op journal.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// Single writer; serialize access at the driver level.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends one event. Errors are returned for logging but callers
// treat them as non-fatal.
func (j *Journal) Record(team, agent, event, detail string) error {
	if j == nil || j.db == nil {
		return nil
	}
	_, err := j.db.Exec(
		"INSERT INTO events (ts, team, agent, event, detail) VALUES (?, ?, ?, ?, ?)",
		domain.NowMillis(), team, agent, event, detail,
	)
	return err
}

// Recent returns the most recent events for a team, newest first. An empty
// team matches every team.
func (j *Journal) Recent(team string, limit int) ([]Event, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT ts, team, agent, event, detail FROM events"
	args := []any{}
	if team != "" {
		query += " WHERE team = ?"
		args = append(args, team)
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, limit)
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.TS, &e.Team, &e.Agent, &e.Event, &e.Detail); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close releases the database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
