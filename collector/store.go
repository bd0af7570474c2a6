package collector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/screenright/dbopen"
)

// Schema creates the collector tables.
const Schema = `
CREATE TABLE IF NOT EXISTS deployments (
	id          TEXT PRIMARY KEY,
	diagram_id  TEXT NOT NULL,
	token       TEXT NOT NULL,
	state       TEXT NOT NULL DEFAULT 'uploading',
	blueprint   TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL,
	done_at     INTEGER
);

CREATE TABLE IF NOT EXISTS screenshots (
	deployment_id  TEXT NOT NULL REFERENCES deployments(id) ON DELETE CASCADE,
	file_key       TEXT NOT NULL,
	filename       TEXT NOT NULL,
	size           INTEGER NOT NULL,
	created_at     INTEGER NOT NULL,
	PRIMARY KEY (deployment_id, file_key)
);
`

// Deployment states.
const (
	StateUploading = "uploading"
	StateDone      = "done"
)

var (
	errNotFound = errors.New("collector: not found")
	errConflict = errors.New("collector: conflict")
)

// Deployment is a row of the deployments table.
type Deployment struct {
	ID        string    `json:"id"`
	DiagramID string    `json:"diagram_id"`
	State     string    `json:"state"`
	Blueprint string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	DoneAt    time.Time `json:"done_at,omitzero"`
	token     string
}

// Screenshot is a row of the screenshots table.
type Screenshot struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type store struct {
	db  *sql.DB
	now func() time.Time
}

func (s *store) createDeployment(ctx context.Context, id, diagramID, token string) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO deployments (id, diagram_id, token, state, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, diagramID, token, StateUploading, s.now().UnixMilli())
	return err
}

func (s *store) deployment(ctx context.Context, diagramID, id string) (*Deployment, error) {
	var d Deployment
	var created int64
	var done sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, diagram_id, token, state, blueprint, created_at, done_at
		FROM deployments WHERE id = ? AND diagram_id = ?`, id, diagramID).
		Scan(&d.ID, &d.DiagramID, &d.token, &d.State, &d.Blueprint, &created, &done)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("collector: load deployment: %w", err)
	}
	d.CreatedAt = time.UnixMilli(created)
	if done.Valid {
		d.DoneAt = time.UnixMilli(done.Int64)
	}
	return &d, nil
}

// addScreenshot inserts the row and runs persist in the same transaction.
// A persist error rolls the row back, so a retry of the key is not a
// conflict.
func (s *store) addScreenshot(ctx context.Context, deploymentID string, shot Screenshot, persist func() error) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO screenshots (deployment_id, file_key, filename, size, created_at) VALUES (?, ?, ?, ?, ?)`,
			deploymentID, shot.Key, shot.Filename, shot.Size, s.now().UnixMilli())
		if err != nil && strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: key %q already uploaded", errConflict, shot.Key)
		}
		if err != nil {
			return err
		}
		return persist()
	})
}

func (s *store) screenshots(ctx context.Context, deploymentID string) ([]Screenshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_key, filename, size FROM screenshots
		WHERE deployment_id = ? ORDER BY created_at, rowid`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("collector: list screenshots: %w", err)
	}
	defer rows.Close()

	out := []Screenshot{}
	for rows.Next() {
		var sh Screenshot
		if err := rows.Scan(&sh.Key, &sh.Filename, &sh.Size); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// finish moves a deployment to done. Only one finish succeeds.
func (s *store) finish(ctx context.Context, id, blueprint string) error {
	res, err := dbopen.Exec(ctx, s.db,
		`UPDATE deployments SET state = ?, blueprint = ?, done_at = ? WHERE id = ? AND state = ?`,
		StateDone, blueprint, s.now().UnixMilli(), id, StateUploading)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: deployment already finished", errConflict)
	}
	return nil
}
