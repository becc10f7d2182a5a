package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Run is one completed screening run
type Run struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Symbols   string    `json:"symbols"`
	TaskID    string    `json:"taskId,omitempty"`
	Total     int       `json:"total"`
	Matched   int       `json:"matched"`
	Annotated bool      `json:"annotated"`
	CreatedAt time.Time `json:"createdAt"`
}

// Recorder stores and lists screening runs
type Recorder interface {
	Record(ctx context.Context, run Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// Noop discards runs. Used when no database is configured.
type Noop struct{}

// Record does nothing
func (Noop) Record(context.Context, Run) error { return nil }

// Recent returns an empty list
func (Noop) Recent(context.Context, int) ([]Run, error) { return []Run{}, nil }

// MaxLimit caps Recent
const MaxLimit = 200

// Repository persists runs to PostgreSQL
// ⭐ SSOT: 실행 이력 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository creates a new history repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// EnsureSchema creates the history table if it does not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS screening_runs (
			id         UUID PRIMARY KEY,
			strategy   TEXT NOT NULL,
			symbols    TEXT NOT NULL DEFAULT '',
			task_id    TEXT NOT NULL DEFAULT '',
			total      INTEGER NOT NULL DEFAULT 0,
			matched    INTEGER NOT NULL DEFAULT 0,
			annotated  BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS screening_runs_created_at_idx ON screening_runs (created_at DESC);
	`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create screening_runs: %w", err)
	}
	return nil
}

// Record inserts a run. Missing ID and CreatedAt are filled in.
func (r *Repository) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = r.now()
	}

	query := `
		INSERT INTO screening_runs (
			id, strategy, symbols, task_id, total, matched, annotated, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		run.ID, run.Strategy, run.Symbols, run.TaskID,
		run.Total, run.Matched, run.Annotated, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	return nil
}

// Recent returns the latest runs, newest first
func (r *Repository) Recent(ctx context.Context, limit int) ([]Run, error) {
	limit = ClampLimit(limit)

	query := `
		SELECT id::text, strategy, symbols, task_id, total, matched, annotated, created_at
		FROM screening_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.Strategy, &run.Symbols, &run.TaskID,
			&run.Total, &run.Matched, &run.Annotated, &run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

// ClampLimit bounds a caller-supplied limit to [1, MaxLimit], defaulting to 20
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
