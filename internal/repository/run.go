package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/schoolpost/internal/model"
)

const runColumns = `id, status, started_at, completed_at, documents_found, documents_processed, error_message, log_details`

// CreateRun inserts a run and assigns its ID.
func (r *Repository) CreateRun(ctx context.Context, run *model.ScrapeRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("encode run steps: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO scrape_runs (`+runColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, run.ID, string(run.Status), run.StartedAt, run.CompletedAt, run.DocumentsFound, run.DocumentsProcessed, run.ErrorMessage, steps)
	if err != nil {
		return fmt.Errorf("insert scrape run: %w", err)
	}
	return nil
}

// UpdateRun writes the run's current state.
func (r *Repository) UpdateRun(ctx context.Context, run *model.ScrapeRun) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("encode run steps: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE scrape_runs
		SET status=$1,
			completed_at=$2,
			documents_found=$3,
			documents_processed=$4,
			error_message=$5,
			log_details=$6
		WHERE id=$7
	`, string(run.Status), run.CompletedAt, run.DocumentsFound, run.DocumentsProcessed, run.ErrorMessage, steps, run.ID)
	if err != nil {
		return fmt.Errorf("update scrape run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows, "scrape run "+run.ID)
	}
	return nil
}

// GetRun returns a run by id.
func (r *Repository) GetRun(ctx context.Context, id string) (*model.ScrapeRun, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM scrape_runs WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err, "scrape run "+id)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	builder := psql.Select(runColumns).From("scrape_runs").OrderBy("started_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scrape runs: %w", err)
	}
	defer rows.Close()

	out := make([]model.ScrapeRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scrape run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (*model.ScrapeRun, error) {
	var (
		run    model.ScrapeRun
		status string
		steps  []byte
	)
	if err := row.Scan(&run.ID, &status, &run.StartedAt, &run.CompletedAt, &run.DocumentsFound,
		&run.DocumentsProcessed, &run.ErrorMessage, &steps); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	run.Steps = []model.RunStep{}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &run.Steps); err != nil {
			return nil, fmt.Errorf("decode run steps: %w", err)
		}
	}
	return &run, nil
}
