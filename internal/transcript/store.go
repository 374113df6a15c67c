package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists finalized entries.
type Store interface {
	// Append stores e under the given session id.
	Append(ctx context.Context, sessionID string, e Entry) error

	// Recent returns up to limit of the newest entries, oldest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Clear deletes all entries.
	Clear(ctx context.Context) error

	Close() error
}

// Compile-time interface assertion.
var _ Store = (*SQLiteStore)(nil)

const schema = `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		sessionId TEXT NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		createdAt REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS entries_createdAt ON entries(createdAt);

	CREATE TABLE IF NOT EXISTS links (
		entryId TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		uri TEXT NOT NULL,
		PRIMARY KEY (entryId, position)
	);
`

// SQLiteStore is a [Store] backed by a sqlite database file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript: open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: migrate: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: enable foreign keys: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is still reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("transcript: ping database: %w", err)
	}
	return nil
}

// Append implements [Store].
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, e Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transcript: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (id, sessionId, sender, text, createdAt) VALUES (?, ?, ?, ?, ?)`,
		e.ID, sessionID, string(e.Sender), e.Text, unixFromTime(e.Timestamp),
	); err != nil {
		return fmt.Errorf("transcript: insert entry: %w", err)
	}
	for i, l := range e.Links {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO links (entryId, position, title, uri) VALUES (?, ?, ?, ?)`,
			e.ID, i, l.Title, l.URI,
		); err != nil {
			return fmt.Errorf("transcript: insert link: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transcript: commit: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, text, createdAt FROM (
			SELECT id, sender, text, createdAt, rowid AS seq
			FROM entries
			ORDER BY createdAt DESC, rowid DESC
			LIMIT ?
		)
		ORDER BY createdAt ASC, seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("transcript: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	index := make(map[string]int)
	for rows.Next() {
		var e Entry
		var sender string
		var createdAt float64
		if err := rows.Scan(&e.ID, &sender, &e.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("transcript: scan entry: %w", err)
		}
		e.Sender = Sender(sender)
		e.Timestamp = timeFromUnix(createdAt)
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: iterate entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]any, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	linkRows, err := s.db.QueryContext(ctx, `
		SELECT entryId, title, uri
		FROM links
		WHERE entryId IN (?`+strings.Repeat(", ?", len(ids)-1)+`)
		ORDER BY entryId, position
	`, ids...)
	if err != nil {
		return nil, fmt.Errorf("transcript: query links: %w", err)
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var id string
		var l GroundingLink
		if err := linkRows.Scan(&id, &l.Title, &l.URI); err != nil {
			return nil, fmt.Errorf("transcript: scan link: %w", err)
		}
		if i, ok := index[id]; ok {
			entries[i].Links = append(entries[i].Links, l)
		}
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: iterate links: %w", err)
	}
	return entries, nil
}

// Clear implements [Store].
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM links; DELETE FROM entries;`); err != nil {
		return fmt.Errorf("transcript: clear: %w", err)
	}
	return nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}
