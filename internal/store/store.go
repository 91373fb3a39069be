// Package store persists job snapshots. Every implementation is also a
// pipeline progress sink.
package store

import (
	"context"
	"errors"
	"sort"

	"video-docs-go/internal/types"
)

var ErrNotFound = errors.New("job not found")

// Filter narrows List. Zero values mean no restriction.
type Filter struct {
	State types.JobState
	Limit int
}

type Store interface {
	OnProgress(ctx context.Context, job types.Job) error
	Get(ctx context.Context, id string) (types.Job, error)
	List(ctx context.Context, f Filter) ([]types.Job, error)
}

// sortNewestFirst orders by creation time, newest first, id as tie breaker.
func sortNewestFirst(jobs []types.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}
