// Package audit persists intervention decisions to SQLite.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const defaultListLimit = 50

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id                TEXT PRIMARY KEY,
	tool              TEXT NOT NULL,
	mode              TEXT NOT NULL,
	resolver          TEXT NOT NULL DEFAULT '',
	required          INTEGER NOT NULL,
	working_directory TEXT NOT NULL DEFAULT '',
	paths             TEXT NOT NULL DEFAULT '[]',
	reason            TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS decisions_created_at ON decisions (created_at);
`

// Record is one audited decision.
type Record struct {
	ID               string    `json:"id"`
	Tool             string    `json:"tool"`
	Mode             string    `json:"mode"`
	Resolver         string    `json:"resolver,omitempty"`
	Required         bool      `json:"required"`
	WorkingDirectory string    `json:"workingDirectory,omitempty"`
	Paths            []string  `json:"paths,omitempty"`
	Reason           string    `json:"reason"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Summary returns a one-line description for listings.
func (r *Record) Summary() string {
	verdict := "pass"
	if r.Required {
		verdict = "intervene"
	}
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s %s %s: %s (%s)", id, r.CreatedAt.Format("Jan 2 15:04:05"), r.Tool, verdict, r.Reason)
}

// Store persists decisions in a SQLite database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "creating audit directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening audit database")
	}
	// single writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating audit schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists rec, filling in ID and CreatedAt when unset.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	paths := rec.Paths
	if paths == nil {
		paths = []string{}
	}
	pathsJSON, err := json.Marshal(paths)
	if err != nil {
		return errors.Wrap(err, "marshaling paths")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, tool, mode, resolver, required, working_directory, paths, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Tool, rec.Mode, rec.Resolver, rec.Required, rec.WorkingDirectory,
		string(pathsJSON), rec.Reason, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return errors.Wrap(err, "inserting decision")
	}
	return nil
}

// Load retrieves a record by ID.
func (s *Store) Load(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tool, mode, resolver, required, working_directory, paths, reason, created_at
		 FROM decisions WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("decision %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading decision")
	}
	return rec, nil
}

// List returns up to limit records, newest first. limit <= 0 uses a default.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tool, mode, resolver, required, working_directory, paths, reason, created_at
		 FROM decisions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing decisions")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "reading decision")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing decisions")
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec       Record
		pathsJSON string
		createdAt int64
	)
	err := sc.Scan(&rec.ID, &rec.Tool, &rec.Mode, &rec.Resolver, &rec.Required,
		&rec.WorkingDirectory, &pathsJSON, &rec.Reason, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pathsJSON), &rec.Paths); err != nil {
		return nil, errors.Wrap(err, "unmarshaling paths")
	}
	if len(rec.Paths) == 0 {
		rec.Paths = nil
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	return &rec, nil
}
