package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"video-docs-go/internal/types"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	source_url  TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	progress    INTEGER NOT NULL DEFAULT 0,
	transcript  TEXT,
	content     JSONB,
	raw_content JSONB,
	error       JSONB,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_state_idx ON jobs (state);
`

// the WHERE clause drops snapshots older than the stored one
const upsertJob = `
INSERT INTO jobs (id, source_url, title, state, progress, transcript, content, raw_content, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	title       = EXCLUDED.title,
	state       = EXCLUDED.state,
	progress    = EXCLUDED.progress,
	transcript  = EXCLUDED.transcript,
	content     = EXCLUDED.content,
	raw_content = EXCLUDED.raw_content,
	error       = EXCLUDED.error,
	updated_at  = EXCLUDED.updated_at
WHERE jobs.updated_at <= EXCLUDED.updated_at`

const selectJobs = `SELECT id, source_url, title, state, progress, transcript, content, raw_content, error, created_at, updated_at FROM jobs`

// Postgres stores jobs in a jobs table through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// EnsureSchema creates the jobs table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createJobsTable); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

func (p *Postgres) OnProgress(ctx context.Context, job types.Job) error {
	content, err := contentJSON(job.Content)
	if err != nil {
		return err
	}
	raw, err := contentJSON(job.RawContent)
	if err != nil {
		return err
	}
	errInfo, err := jsonOrNil(job.Error)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, upsertJob,
		job.ID, job.SourceRef, job.Title, string(job.State), job.Progress, job.Transcript,
		content, raw, errInfo, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (types.Job, error) {
	row := p.pool.QueryRow(ctx, selectJobs+` WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Job{}, ErrNotFound
	}
	return job, err
}

func (p *Postgres) List(ctx context.Context, f Filter) ([]types.Job, error) {
	query := selectJobs
	var args []any
	if f.State != "" {
		args = append(args, string(f.State))
		query += fmt.Sprintf(" WHERE state = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (types.Job, error) {
	var (
		job                   types.Job
		state                 string
		content, raw, errInfo []byte
	)
	err := row.Scan(&job.ID, &job.SourceRef, &job.Title, &state, &job.Progress, &job.Transcript,
		&content, &raw, &errInfo, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return types.Job{}, err
	}
	job.State = types.JobState(state)
	if err := contentFrom(content, &job.Content); err != nil {
		return types.Job{}, err
	}
	if err := contentFrom(raw, &job.RawContent); err != nil {
		return types.Job{}, err
	}
	if err := unmarshalInto(errInfo, &job.Error); err != nil {
		return types.Job{}, err
	}
	return job, nil
}

func jsonOrNil[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

func unmarshalInto[T any](data []byte, dst **T) error {
	if len(data) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	*dst = &v
	return nil
}

func contentJSON(c types.Content) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	return b, nil
}

func contentFrom(data []byte, dst *types.Content) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode content: %w", err)
	}
	return nil
}
