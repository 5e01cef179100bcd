// Package postgres persists pipeline runs in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gomix/domain/budget"
	"gomix/domain/core"
	"gomix/ports"
)

// Connect opens and pings a PostgreSQL connection.
func Connect(url string) (*sqlx.DB, error) {
	return sqlx.Connect("postgres", url)
}

// Schema creates the runs table if it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	seed       BIGINT NOT NULL,
	fit_status TEXT NOT NULL,
	result     JSONB NOT NULL,
	runtime_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// RunRepositoryImpl implements RunStore for PostgreSQL
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) ports.RunStore {
	return &RunRepositoryImpl{db: db}
}

// EnsureSchema applies the runs table schema.
func (r *RunRepositoryImpl) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

type runRow struct {
	RunID     string    `db:"run_id"`
	Seed      int64     `db:"seed"`
	FitStatus string    `db:"fit_status"`
	Result    []byte    `db:"result"`
	RuntimeMs int64     `db:"runtime_ms"`
	CreatedAt time.Time `db:"created_at"`
}

// SaveRun writes one run record, replacing any previous record for the same id
func (r *RunRepositoryImpl) SaveRun(ctx context.Context, rec ports.RunRecord) error {
	payload, err := json.Marshal(rec.Result)
	if err != nil {
		return err
	}
	row := runRow{
		RunID:     rec.RunID.String(),
		Seed:      rec.Seed,
		FitStatus: string(rec.FitStatus),
		Result:    payload,
		RuntimeMs: rec.RuntimeMs,
		CreatedAt: rec.CreatedAt.Time(),
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO runs (run_id, seed, fit_status, result, runtime_ms, created_at)
		VALUES (:run_id, :seed, :fit_status, :result, :runtime_ms, :created_at)
		ON CONFLICT (run_id) DO UPDATE SET
			seed = EXCLUDED.seed,
			fit_status = EXCLUDED.fit_status,
			result = EXCLUDED.result,
			runtime_ms = EXCLUDED.runtime_ms,
			created_at = EXCLUDED.created_at
	`, row)
	return err
}

// GetRun retrieves one run record by id
func (r *RunRepositoryImpl) GetRun(ctx context.Context, id core.RunID) (*ports.RunRecord, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT run_id, seed, fit_status, result, runtime_ms, created_at
		FROM runs
		WHERE run_id = $1
	`, id.String())
	if err != nil {
		return nil, err
	}

	var result budget.OptimizationResult
	if err := json.Unmarshal(row.Result, &result); err != nil {
		return nil, err
	}
	return &ports.RunRecord{
		RunID:     core.RunID(row.RunID),
		Seed:      row.Seed,
		FitStatus: core.FitStatus(row.FitStatus),
		Result:    result,
		RuntimeMs: row.RuntimeMs,
		CreatedAt: core.NewTimestamp(row.CreatedAt),
	}, nil
}
