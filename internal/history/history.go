// Package history journals sync passes in a local SQLite database so the
// launcher can show what changed, when, and why a component failed.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/pflauncher/launcher/internal/updater"
)

// DefaultKeep is the number of passes retained by default.
const DefaultKeep = 200

const schemaVersion = 1

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS passes (
	run_id      TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	status      TEXT NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	playable    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id           TEXT NOT NULL REFERENCES passes(run_id) ON DELETE CASCADE,
	position         INTEGER NOT NULL,
	component        TEXT NOT NULL,
	kind             TEXT NOT NULL,
	state            TEXT NOT NULL,
	version          TEXT NOT NULL DEFAULT '',
	previous_version TEXT NOT NULL DEFAULT '',
	verified         INTEGER NOT NULL DEFAULT 0,
	bytes            INTEGER NOT NULL DEFAULT 0,
	error_kind       TEXT NOT NULL DEFAULT '',
	error            TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS passes_started ON passes(started_at);
CREATE INDEX IF NOT EXISTS outcomes_component ON outcomes(component);
`

// Pass is one journaled sync pass.
type Pass struct {
	RunID     string
	Started   time.Time
	Duration  time.Duration
	Status    string
	ErrorKind string
	Error     string
	Playable  bool
	Outcomes  []Outcome
}

// Outcome is one journaled component result.
type Outcome struct {
	RunID           string
	Component       string
	Kind            string
	State           string
	Version         string
	PreviousVersion string
	Verified        bool
	Bytes           int64
	ErrorKind       string
	Error           string
}

// Store is the SQLite journal. It implements updater.Journal.
type Store struct {
	db   *sql.DB
	path string
	keep int
}

var _ updater.Journal = (*Store)(nil)

// Open opens or creates the journal at path. keep bounds the number of
// passes retained; 0 selects DefaultKeep and a negative value keeps all.
func Open(ctx context.Context, path string, keep int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if keep == 0 {
		keep = DefaultKeep
	}
	return &Store{db: db, path: path, keep: keep}, nil
}

// buildDSN enables WAL, foreign keys and a busy timeout for a second
// launcher reading the journal.
func buildDSN(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	u.RawQuery = q.Encode()
	return u.String()
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read history schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("history schema version %d is newer than supported %d", version, schemaVersion)
	}
	if version == schemaVersion {
		return nil
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("set history schema version: %w", err)
	}
	return nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordPass journals a finished pass and prunes old passes.
func (s *Store) RecordPass(ctx context.Context, r *updater.Result) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO passes (run_id, started_at, duration_ms, status, error_kind, error, playable)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID,
		formatTime(r.Started),
		r.Duration.Milliseconds(),
		string(r.Status),
		errorKind(r.Err),
		errorText(r.Err),
		r.Playable,
	)
	if err != nil {
		return fmt.Errorf("insert pass: %w", err)
	}

	for i, o := range r.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outcomes (run_id, position, component, kind, state, version,
				previous_version, verified, bytes, error_kind, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, i, o.Component, string(o.Kind), o.State.String(), o.Version,
			o.PreviousVersion, o.Verified, o.Bytes, o.ErrorKind(), errorText(o.Err),
		)
		if err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Component, err)
		}
	}

	if s.keep > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM passes WHERE run_id NOT IN (
				SELECT run_id FROM passes ORDER BY started_at DESC, run_id DESC LIMIT ?
			)`, s.keep)
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// Recent returns up to limit passes, newest first, with their outcomes.
func (s *Store) Recent(ctx context.Context, limit int) ([]Pass, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, duration_ms, status, error_kind, error, playable
		FROM passes
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var passes []Pass
	for rows.Next() {
		var (
			p          Pass
			started    string
			durationMS int64
		)
		if err := rows.Scan(&p.RunID, &started, &durationMS, &p.Status, &p.ErrorKind, &p.Error, &p.Playable); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		p.Started, err = parseTime(started)
		if err != nil {
			return nil, err
		}
		p.Duration = time.Duration(durationMS) * time.Millisecond
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range passes {
		outcomes, err := s.queryOutcomes(ctx, `WHERE run_id = ? ORDER BY position`, passes[i].RunID)
		if err != nil {
			return nil, err
		}
		passes[i].Outcomes = outcomes
	}
	return passes, nil
}

// Component returns the most recent outcomes for one component, newest
// first.
func (s *Store) Component(ctx context.Context, component string, limit int) ([]Outcome, error) {
	return s.queryOutcomes(ctx, `
		JOIN passes p USING (run_id)
		WHERE o.component = ?
		ORDER BY p.started_at DESC, o.run_id DESC
		LIMIT ?`, component, limit)
}

func (s *Store) queryOutcomes(ctx context.Context, clause string, args ...interface{}) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.run_id, o.component, o.kind, o.state, o.version, o.previous_version,
			o.verified, o.bytes, o.error_kind, o.error
		FROM outcomes o `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.RunID, &o.Component, &o.Kind, &o.State, &o.Version, &o.PreviousVersion,
			&o.Verified, &o.Bytes, &o.ErrorKind, &o.Error); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse pass time %q: %w", s, err)
	}
	return t, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

func errorKind(err error) string {
	if err == nil {
		return ""
	}
	o := updater.Outcome{Err: err}
	return o.ErrorKind()
}
