package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amishk599/feedsync/internal/model"
)

// Ensure SQLiteSnapshot implements model.Snapshotter.
var _ model.Snapshotter = (*SQLiteSnapshot)(nil)

// SQLiteSnapshot keeps the last known feed in a SQLite database so it can be
// shown when the server is unreachable.
type SQLiteSnapshot struct {
	db *sql.DB
}

// NewSQLiteSnapshot opens (or creates) a SQLite database at dbPath and
// ensures the feed_snapshot table exists.
func NewSQLiteSnapshot(dbPath string) (*SQLiteSnapshot, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS feed_snapshot (
		position       INTEGER PRIMARY KEY,
		job_id         TEXT NOT NULL UNIQUE,
		title          TEXT NOT NULL DEFAULT '',
		company        TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		location       TEXT NOT NULL DEFAULT '',
		url            TEXT NOT NULL DEFAULT '',
		ai_match_score INTEGER NOT NULL DEFAULT 0,
		is_saved       INTEGER NOT NULL DEFAULT 0,
		is_applied     INTEGER NOT NULL DEFAULT 0,
		has_contact    INTEGER NOT NULL DEFAULT 0,
		posted_at      TEXT NOT NULL DEFAULT '',
		source         TEXT NOT NULL DEFAULT ''
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating feed_snapshot table: %w", err)
	}

	return &SQLiteSnapshot{db: db}, nil
}

// Save replaces the snapshot with records, preserving their order.
func (s *SQLiteSnapshot) Save(records []model.JobRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM feed_snapshot"); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO feed_snapshot
		(position, job_id, title, company, description, location, url,
		 ai_match_score, is_saved, is_applied, has_contact, posted_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		postedAt := ""
		if r.PostedAt != nil {
			postedAt = r.PostedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.Exec(i, r.ID, r.Title, r.Company, r.Description, r.Location, r.URL,
			r.AIMatchScore, r.IsSaved, r.IsApplied, r.HasContact, postedAt, r.Source); err != nil {
			return fmt.Errorf("saving job %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load returns the saved records in their original order.
func (s *SQLiteSnapshot) Load() ([]model.JobRecord, error) {
	rows, err := s.db.Query(`SELECT job_id, title, company, description, location, url,
		ai_match_score, is_saved, is_applied, has_contact, posted_at, source
		FROM feed_snapshot ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	defer rows.Close()

	var records []model.JobRecord
	for rows.Next() {
		var (
			r        model.JobRecord
			postedAt string
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Company, &r.Description, &r.Location, &r.URL,
			&r.AIMatchScore, &r.IsSaved, &r.IsApplied, &r.HasContact, &postedAt, &r.Source); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if postedAt != "" {
			t, err := time.Parse(time.RFC3339Nano, postedAt)
			if err != nil {
				return nil, fmt.Errorf("parsing posted_at for %s: %w", r.ID, err)
			}
			r.PostedAt = &t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteSnapshot) Close() error {
	return s.db.Close()
}
