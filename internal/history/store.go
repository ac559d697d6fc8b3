// Package history persists evaluated calculations in a sqlite database.
package history

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("speedcalc.history")

// ErrNotFound indicates the requested entry doesn't exist.
var ErrNotFound = stderrors.New("history entry not found")

// Status mirrors the interpreter result of an evaluation.
type Status int

const (
	StatusSuccess Status = iota
	StatusCompileError
	StatusRuntimeError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCompileError:
		return "compile error"
	case StatusRuntimeError:
		return "runtime error"
	default:
		return "unknown"
	}
}

// Transcript is everything an evaluation wrote besides its result. It is
// stored CBOR-encoded in the payload column.
type Transcript struct {
	Output        []string `cbor:"1,keyasint,omitempty"`
	Diagnostics   []string `cbor:"2,keyasint,omitempty"`
	Instructions  int64    `cbor:"3,keyasint"`
	DurationNanos int64    `cbor:"4,keyasint"`
}

// Duration returns the recorded wall time.
func (t Transcript) Duration() time.Duration {
	return time.Duration(t.DurationNanos)
}

// Entry is one recorded evaluation.
type Entry struct {
	ID         string
	Session    string
	Source     string
	Status     Status
	Result     string
	Transcript Transcript
	CreatedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id TEXT PRIMARY KEY,
	session TEXT NOT NULL,
	source TEXT NOT NULL,
	status INTEGER NOT NULL,
	result TEXT NOT NULL,
	payload BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_session_created ON entries (session, created_at);
`

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("history: failed to create CBOR enc mode: " + err.Error())
	}
	encMode = em
}

var now = time.Now

// Store handles sqlite storage for history entries.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if necessary) the database at path and migrates the
// schema. The path ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating history directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "setting busy timeout")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrating schema")
	}
	log.Debugf("opened history store %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Record persists e, assigning an id and timestamp when they are unset.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	payload, err := encMode.Marshal(e.Transcript)
	if err != nil {
		return Entry{}, errors.Wrap(err, "encoding transcript")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO entries (id, session, source, status, result, payload, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.Session, e.Source, int(e.Status), e.Result, payload, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "saving entry %s", e.ID)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first. An empty session
// selects entries from every session.
func (s *Store) Recent(ctx context.Context, session string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT id, session, source, status, result, payload, created_at FROM entries"
	args := []any{}
	if session != "" {
		query += " WHERE session = ?"
		args = append(args, session)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying entries")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "reading entries")
	}
	return out, nil
}

// Get retrieves a single entry by id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, session, source, status, result, payload, created_at FROM entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Clear deletes the entries of session, or every entry when session is
// empty, and reports how many were removed.
func (s *Store) Clear(ctx context.Context, session string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res sql.Result
		err error
	)
	if session == "" {
		res, err = s.db.ExecContext(ctx, "DELETE FROM entries")
	} else {
		res, err = s.db.ExecContext(ctx, "DELETE FROM entries WHERE session = ?", session)
	}
	if err != nil {
		return 0, errors.Wrap(err, "clearing entries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "counting cleared entries")
	}
	log.Debugf("cleared %d history entries", n)
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e       Entry
		status  int
		payload []byte
		created int64
	)
	if err := row.Scan(&e.ID, &e.Session, &e.Source, &status, &e.Result, &payload, &created); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, errors.Wrap(err, "scanning entry")
	}
	if err := cbor.Unmarshal(payload, &e.Transcript); err != nil {
		return Entry{}, errors.Wrapf(err, "decoding transcript of %s", e.ID)
	}
	e.Status = Status(status)
	e.CreatedAt = time.Unix(0, created)
	return e, nil
}
