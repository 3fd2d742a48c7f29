package session

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Archiver persists evicted session transcripts into SQLite so that
// eviction bounds memory without silently discarding conversations.
// Archival is best-effort: it runs off the chat path and its failures
// never affect live turns.
type Archiver struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewArchiver opens (or creates) the archive database
func NewArchiver(path string, logger zerolog.Logger) (*Archiver, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Archiver{db: db, logger: logger}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS archived_sessions (
		id            TEXT PRIMARY KEY,
		created_at    TIMESTAMP NOT NULL,
		last_active   TIMESTAMP NOT NULL,
		archived_at   TIMESTAMP NOT NULL,
		message_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS archived_messages (
		session_id         TEXT NOT NULL,
		seq                INTEGER NOT NULL,
		message_id         TEXT NOT NULL,
		role               TEXT NOT NULL,
		content            TEXT,
		tool_name          TEXT,
		tool_invocation_id TEXT,
		created_at         TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, seq)
	);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return nil
}

// Archive writes one evicted session transcript. Re-archiving the same
// session id replaces the previous transcript.
func (a *Archiver) Archive(ev Evicted) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM archived_messages WHERE session_id = ?`, ev.ID,
	); err != nil {
		return fmt.Errorf("failed to clear previous archive: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO archived_sessions (id, created_at, last_active, archived_at, message_count)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.CreatedAt, ev.LastActive, time.Now(), len(ev.Messages),
	); err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}

	for i, msg := range ev.Messages {
		if _, err := tx.Exec(
			`INSERT INTO archived_messages (session_id, seq, message_id, role, content, tool_name, tool_invocation_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, i, msg.ID, msg.Role, msg.Content, msg.ToolName, msg.ToolInvocationID, msg.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to archive message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}

	a.logger.Debug().
		Str("session_id", ev.ID).
		Int("messages", len(ev.Messages)).
		Msg("Session archived")

	return nil
}

// ArchivedCount returns the number of archived sessions
func (a *Archiver) ArchivedCount() (int, error) {
	var count int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM archived_sessions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count archived sessions: %w", err)
	}
	return count, nil
}

// LoadArchived reads back one archived transcript in original order
func (a *Archiver) LoadArchived(sessionID string) ([]Message, error) {
	rows, err := a.db.Query(
		`SELECT message_id, role, content, tool_name, tool_invocation_id, created_at
		 FROM archived_messages WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load archived session: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.ToolName, &msg.ToolInvocationID, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan archived message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// Close closes the archive database
func (a *Archiver) Close() error {
	return a.db.Close()
}
