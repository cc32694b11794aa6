package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptreel/promptreel-api/internal/provider"
)

// Compile-time check that PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)

// schema is applied at startup; a single table keeps migrations inline.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id              uuid PRIMARY KEY,
	status          text NOT NULL,
	model_code      text NOT NULL,
	provider        text NOT NULL,
	provider_job_id text,
	input           jsonb NOT NULL,
	output          jsonb,
	error           text,
	created_at      timestamptz NOT NULL,
	updated_at      timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_provider_job_id_idx ON jobs (provider_job_id);
`

// PostgresRepository implements Repository using pgx/v5.
// State transitions are guarded in SQL (WHERE status = / NOT IN), so the
// terminal-write race between polling and webhooks is settled by the
// database, not by application locks.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx pool against the given URL and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// NewPostgresRepository creates a repository and ensures the schema exists.
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool) (*PostgresRepository, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply jobs schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Insert persists a new job.
func (r *PostgresRepository) Insert(ctx context.Context, j *Job) error {
	input, err := json.Marshal(j.Input)
	if err != nil {
		return fmt.Errorf("marshal job input: %w", err)
	}

	var handle *string
	if j.ProviderJobID != "" {
		handle = &j.ProviderJobID
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, model_code, provider, provider_job_id, input, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		j.ID, string(j.Status), j.ModelCode, j.Provider, handle, input, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// FindByID retrieves a job by its ID.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	return r.findWhere(ctx, `id = $1`, id)
}

// FindByProviderJobID retrieves a job by the provider's tracking handle.
func (r *PostgresRepository) FindByProviderJobID(ctx context.Context, providerJobID string) (*Job, error) {
	return r.findWhere(ctx, `provider_job_id = $1`, providerJobID)
}

func (r *PostgresRepository) findWhere(ctx context.Context, where string, arg any) (*Job, error) {
	var (
		j      Job
		status string
		handle *string
		input  []byte
		output []byte
		errMsg *string
	)

	err := r.pool.QueryRow(ctx,
		`SELECT id, status, model_code, provider, provider_job_id, input, output, error, created_at, updated_at
		 FROM jobs WHERE `+where+` LIMIT 1`, arg,
	).Scan(&j.ID, &status, &j.ModelCode, &j.Provider, &handle, &input, &output, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	j.Status = Status(status)
	if handle != nil {
		j.ProviderJobID = *handle
	}
	if errMsg != nil {
		j.Error = *errMsg
	}
	if err := json.Unmarshal(input, &j.Input); err != nil {
		return nil, fmt.Errorf("unmarshal job input: %w", err)
	}
	if len(output) > 0 {
		var out provider.Output
		if err := json.Unmarshal(output, &out); err != nil {
			return nil, fmt.Errorf("unmarshal job output: %w", err)
		}
		j.Output = &out
	}

	return &j, nil
}

// MarkRunning transitions a created job to running with its provider handle.
// The status guard makes the write a no-op when the job already moved on.
func (r *PostgresRepository) MarkRunning(ctx context.Context, id, providerJobID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, provider_job_id = $3, updated_at = $4
		 WHERE id = $1 AND status = $5`,
		id, string(StatusRunning), providerJobID, time.Now().UTC(), string(StatusCreated))
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Finalize writes a terminal state unless the job is already terminal.
// The conditional update is the compare-and-swap that decides races between
// the polling and webhook paths.
func (r *PostgresRepository) Finalize(ctx context.Context, id string, status Status, output *provider.Output, errMsg string) (bool, error) {
	var outJSON []byte
	if output != nil {
		var err error
		outJSON, err = json.Marshal(output)
		if err != nil {
			return false, fmt.Errorf("marshal job output: %w", err)
		}
	}

	var errCol *string
	if errMsg != "" {
		errCol = &errMsg
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, output = $3, error = $4, updated_at = $5
		 WHERE id = $1 AND status NOT IN ($6, $7)`,
		id, string(status), outJSON, errCol, time.Now().UTC(),
		string(StatusSucceeded), string(StatusFailed))
	if err != nil {
		return false, fmt.Errorf("finalize job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
