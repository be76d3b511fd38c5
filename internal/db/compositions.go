package db

import (
	"context"
	"time"
)

// Composition is one persisted composition row. Snapshot is the flow
// snapshot JSON exactly as the graph store serialized it.
type Composition struct {
	ID        int64     `json:"-"`
	PublicID  string    `json:"id"`
	Name      string    `json:"name"`
	Snapshot  []byte    `json:"snapshot"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const compositionColumns = `id, public_id, name, snapshot, created_at, updated_at`

type CreateCompositionParams struct {
	PublicID string
	Name     string
	Snapshot []byte
}

func (q *Queries) CreateComposition(ctx context.Context, arg CreateCompositionParams) (Composition, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO compositions (public_id, name, snapshot)
		VALUES ($1, $2, $3)
		RETURNING `+compositionColumns,
		arg.PublicID, arg.Name, arg.Snapshot,
	)
	return scanComposition(row)
}

func (q *Queries) GetComposition(ctx context.Context, publicID string) (Composition, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+compositionColumns+`
		FROM compositions
		WHERE public_id = $1`,
		publicID,
	)
	return scanComposition(row)
}

func (q *Queries) ListCompositions(ctx context.Context) ([]Composition, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+compositionColumns+`
		FROM compositions
		ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comps := make([]Composition, 0)
	for rows.Next() {
		c, err := scanComposition(rows)
		if err != nil {
			return nil, err
		}
		comps = append(comps, c)
	}
	return comps, rows.Err()
}

type RenameCompositionParams struct {
	PublicID string
	Name     string
}

func (q *Queries) RenameComposition(ctx context.Context, arg RenameCompositionParams) (Composition, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE compositions
		SET name = $2, updated_at = now()
		WHERE public_id = $1
		RETURNING `+compositionColumns,
		arg.PublicID, arg.Name,
	)
	return scanComposition(row)
}

type UpdateCompositionSnapshotParams struct {
	PublicID string
	Snapshot []byte
}

func (q *Queries) UpdateCompositionSnapshot(ctx context.Context, arg UpdateCompositionSnapshotParams) (Composition, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE compositions
		SET snapshot = $2, updated_at = now()
		WHERE public_id = $1
		RETURNING `+compositionColumns,
		arg.PublicID, arg.Snapshot,
	)
	return scanComposition(row)
}

func (q *Queries) DeleteComposition(ctx context.Context, publicID string) error {
	_, err := q.db.Exec(ctx, `DELETE FROM compositions WHERE public_id = $1`, publicID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComposition(row rowScanner) (Composition, error) {
	var c Composition
	err := row.Scan(&c.ID, &c.PublicID, &c.Name, &c.Snapshot, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
