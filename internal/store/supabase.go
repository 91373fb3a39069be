package store

import (
	"context"
	"fmt"
	"time"

	supabase "github.com/supabase-community/supabase-go"

	"video-docs-go/internal/types"
)

// jobRow is the REST representation of a row in the jobs table.
type jobRow struct {
	ID         string           `json:"id"`
	SourceURL  string           `json:"source_url"`
	Title      string           `json:"title"`
	State      string           `json:"state"`
	Progress   int              `json:"progress"`
	Transcript *string          `json:"transcript"`
	Content    types.Content    `json:"content"`
	RawContent types.Content    `json:"raw_content"`
	Error      *types.ErrorInfo `json:"error"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func toRow(j types.Job) jobRow {
	return jobRow{
		ID: j.ID, SourceURL: j.SourceRef, Title: j.Title, State: string(j.State), Progress: j.Progress,
		Transcript: j.Transcript, Content: j.Content, RawContent: j.RawContent, Error: j.Error,
		CreatedAt: j.CreatedAt, UpdatedAt: j.UpdatedAt,
	}
}

func (r jobRow) job() types.Job {
	return types.Job{
		ID: r.ID, SourceRef: r.SourceURL, Title: r.Title, State: types.JobState(r.State), Progress: r.Progress,
		Transcript: r.Transcript, Content: r.Content, RawContent: r.RawContent, Error: r.Error,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// Supabase stores jobs through the Supabase REST API. It expects the same jobs
// table the Postgres store creates.
type Supabase struct {
	client *supabase.Client
	table  string
}

func NewSupabase(url, key string) (*Supabase, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase client: %w", err)
	}
	return &Supabase{client: client, table: "jobs"}, nil
}

func (s *Supabase) OnProgress(ctx context.Context, job types.Job) error {
	_, _, err := s.client.From(s.table).Upsert(toRow(job), "id", "minimal", "").Execute()
	if err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Supabase) Get(ctx context.Context, id string) (types.Job, error) {
	var rows []jobRow
	if _, err := s.client.From(s.table).Select("*", "", false).Eq("id", id).ExecuteTo(&rows); err != nil {
		return types.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(rows) == 0 {
		return types.Job{}, ErrNotFound
	}
	return rows[0].job(), nil
}

func (s *Supabase) List(ctx context.Context, f Filter) ([]types.Job, error) {
	q := s.client.From(s.table).Select("*", "", false)
	if f.State != "" {
		q = q.Eq("state", string(f.State))
	}
	var rows []jobRow
	if _, err := q.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	out := make([]types.Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.job())
	}
	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
