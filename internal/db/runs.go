package db

import (
	"context"
	"time"
)

// Run is one persisted run row. PublicID is the executor's run id; Output
// is the accumulated log buffer maintained by the tracking worker.
type Run struct {
	ID            int64      `json:"-"`
	PublicID      string     `json:"id"`
	CompositionID string     `json:"composition_id"`
	Status        string     `json:"status"`
	Output        string     `json:"output"`
	Error         string     `json:"error,omitempty"`
	Metrics       []byte     `json:"metrics,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

const runColumns = `id, public_id, composition_id, status, output, error, metrics, created_at, started_at, completed_at, updated_at`

type CreateRunParams struct {
	PublicID      string
	CompositionID string
	Status        string
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) (Run, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO runs (public_id, composition_id, status)
		VALUES ($1, $2, $3)
		RETURNING `+runColumns,
		arg.PublicID, arg.CompositionID, arg.Status,
	)
	return scanRun(row)
}

func (q *Queries) GetRun(ctx context.Context, publicID string) (Run, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE public_id = $1`,
		publicID,
	)
	return scanRun(row)
}

func (q *Queries) ListRunsForComposition(ctx context.Context, compositionID string) ([]Run, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE composition_id = $1
		ORDER BY created_at DESC`,
		compositionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type UpdateRunStateParams struct {
	PublicID    string
	Status      string
	Error       string
	Metrics     []byte
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// UpdateRunState writes the executor-reported lifecycle fields. Output is
// deliberately untouched; the log buffer has its own write path.
func (q *Queries) UpdateRunState(ctx context.Context, arg UpdateRunStateParams) (Run, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE runs
		SET status = $2,
		    error = $3,
		    metrics = $4,
		    started_at = $5,
		    completed_at = $6,
		    updated_at = now()
		WHERE public_id = $1
		RETURNING `+runColumns,
		arg.PublicID, arg.Status, arg.Error, arg.Metrics, arg.StartedAt, arg.CompletedAt,
	)
	return scanRun(row)
}

type UpdateRunOutputParams struct {
	PublicID string
	Output   string
}

func (q *Queries) UpdateRunOutput(ctx context.Context, arg UpdateRunOutputParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE runs
		SET output = $2, updated_at = now()
		WHERE public_id = $1`,
		arg.PublicID, arg.Output,
	)
	return err
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	err := row.Scan(
		&r.ID, &r.PublicID, &r.CompositionID, &r.Status, &r.Output, &r.Error,
		&r.Metrics, &r.CreatedAt, &r.StartedAt, &r.CompletedAt, &r.UpdatedAt,
	)
	return r, err
}
