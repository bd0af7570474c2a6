// Package journal keeps a local SQLite ledger of recorder sessions and their
// captures.
//
// Writes are non-blocking: failures are logged through slog and never
// propagate, so a broken journal never breaks a capture session. All methods
// are safe on a nil *Journal, which records nothing.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/screenright/dbopen"
	"github.com/hazyhaar/screenright/idgen"
)

// Schema creates the journal tables.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	diagram_id     TEXT NOT NULL,
	deployment_id  TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	opened_at      INTEGER NOT NULL,
	closed_at      INTEGER
);

CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	file_key    TEXT NOT NULL,
	parent_key  TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_captures_session ON captures(session_id, created_at);
`

// Session states stored in sessions.state.
const (
	StateOpening = "opening"
	StateActive  = "active"
	StateFailed  = "failed"
	StateClosed  = "closed"
)

// Capture outcomes stored in captures.outcome.
const (
	OutcomeRecorded  = "recorded"
	OutcomeDropped   = "dropped"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// SessionRecord is a row of the sessions table.
type SessionRecord struct {
	ID           string
	DiagramID    string
	DeploymentID string
	State        string
	Error        string
	OpenedAt     time.Time
	ClosedAt     time.Time
}

// CaptureRecord is a row of the captures table.
type CaptureRecord struct {
	SessionID string
	Key       string
	ParentKey string
	Title     string
	URL       string
	Outcome   string
	Error     string
	CreatedAt time.Time
}

// Journal writes session and capture events.
type Journal struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets the generator for row IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// New creates a Journal on db, which must carry Schema (open it with
// dbopen.WithSchema(journal.Schema)).
func New(db *sql.DB, opts ...Option) *Journal {
	j := &Journal{
		db:     db,
		newID:  idgen.Default,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// SessionStarted records an open attempt and returns the journal session ID.
func (j *Journal) SessionStarted(ctx context.Context, diagramID string) string {
	if j == nil {
		return ""
	}
	id := j.newID()
	j.exec(ctx, "session started",
		`INSERT INTO sessions (id, diagram_id, state, opened_at) VALUES (?, ?, ?, ?)`,
		id, diagramID, StateOpening, j.now().UnixMilli())
	return id
}

// SessionActivated marks id active under deploymentID.
func (j *Journal) SessionActivated(ctx context.Context, id, deploymentID string) {
	if j == nil || id == "" {
		return
	}
	j.exec(ctx, "session activated",
		`UPDATE sessions SET state = ?, deployment_id = ? WHERE id = ?`,
		StateActive, deploymentID, id)
}

// SessionFailed marks id failed with cause. The first recorded cause wins.
func (j *Journal) SessionFailed(ctx context.Context, id string, cause error) {
	if j == nil || id == "" {
		return
	}
	j.exec(ctx, "session failed",
		`UPDATE sessions SET state = ?, error = CASE WHEN error = '' THEN ? ELSE error END, closed_at = ? WHERE id = ?`,
		StateFailed, errString(cause), j.now().UnixMilli(), id)
}

// SessionClosed marks id closed. finalizeErr is kept when the final
// collector call failed.
func (j *Journal) SessionClosed(ctx context.Context, id string, finalizeErr error) {
	if j == nil || id == "" {
		return
	}
	j.exec(ctx, "session closed",
		`UPDATE sessions SET state = ?, error = ?, closed_at = ? WHERE id = ?`,
		StateClosed, errString(finalizeErr), j.now().UnixMilli(), id)
}

// Capture records one capture attempt.
func (j *Journal) Capture(ctx context.Context, rec CaptureRecord) {
	if j == nil || rec.SessionID == "" {
		return
	}
	j.exec(ctx, "capture",
		`INSERT INTO captures (id, session_id, file_key, parent_key, title, url, outcome, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.newID(), rec.SessionID, rec.Key, rec.ParentKey, rec.Title, rec.URL,
		rec.Outcome, rec.Error, j.now().UnixMilli())
}

// Sessions lists the most recent sessions first.
func (j *Journal) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, diagram_id, deployment_id, state, error, opened_at, COALESCE(closed_at, 0)
		FROM sessions ORDER BY opened_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var opened, closed int64
		if err := rows.Scan(&r.ID, &r.DiagramID, &r.DeploymentID, &r.State, &r.Error, &opened, &closed); err != nil {
			return nil, err
		}
		r.OpenedAt = time.UnixMilli(opened)
		if closed > 0 {
			r.ClosedAt = time.UnixMilli(closed)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Captures lists the captures of sessionID in chronological order.
func (j *Journal) Captures(ctx context.Context, sessionID string) ([]CaptureRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id, file_key, parent_key, title, url, outcome, error, created_at
		FROM captures WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("journal: list captures: %w", err)
	}
	defer rows.Close()

	var out []CaptureRecord
	for rows.Next() {
		var r CaptureRecord
		var created int64
		if err := rows.Scan(&r.SessionID, &r.Key, &r.ParentKey, &r.Title, &r.URL, &r.Outcome, &r.Error, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *Journal) exec(ctx context.Context, what, query string, args ...any) {
	// A cancelled caller still gets its failure recorded.
	ctx = context.WithoutCancel(ctx)
	if _, err := dbopen.Exec(ctx, j.db, query, args...); err != nil {
		j.logger.Warn("journal: write failed", "op", what, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
