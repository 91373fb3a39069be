package store

import (
	"context"
	"sync"

	"video-docs-go/internal/types"
)

// Memory keeps jobs in a map. Suitable for a single process.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]types.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]types.Job)}
}

// OnProgress stores the snapshot unless a newer one is already present.
func (m *Memory) OnProgress(ctx context.Context, job types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.jobs[job.ID]; ok && cur.UpdatedAt.After(job.UpdatedAt) {
		return nil
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return types.Job{}, ErrNotFound
	}
	return job.Clone(), nil
}

func (m *Memory) List(ctx context.Context, f Filter) ([]types.Job, error) {
	m.mu.RLock()
	out := make([]types.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if f.State != "" && j.State != f.State {
			continue
		}
		out = append(out, j.Clone())
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
