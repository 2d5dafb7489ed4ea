package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/storage"
)

// SaveRun inserts or replaces a run.
func (i *Index) SaveRun(ctx context.Context, run *core.IngestionRun) error {
	run.UpdatedAt = time.Now().UTC()
	body, err := storage.MarshalRun(run)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO sheetvec_runs (id, started_at, body)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body
	`
	_, err = i.db.ExecContext(ctx, q, run.Id, run.StartedAt, string(body))
	return err
}

// GetRun retrieves a run by id.
func (i *Index) GetRun(ctx context.Context, id string) (*core.IngestionRun, error) {
	var body []byte
	err := i.db.QueryRowContext(ctx, `SELECT body FROM sheetvec_runs WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalRun(body)
}

// ListRuns returns up to limit runs, most recently started first.
// A limit of zero or less returns every run.
func (i *Index) ListRuns(ctx context.Context, limit int) ([]*core.IngestionRun, error) {
	q := `SELECT body FROM sheetvec_runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := i.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.IngestionRun
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		run, err := storage.UnmarshalRun(body)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
