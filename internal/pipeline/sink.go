package pipeline

import (
	"context"
	"errors"

	"video-docs-go/internal/types"
)

// ProgressSink receives a full job snapshot after every transition. Delivery is
// at least once for the latest state; a sink error never fails the job.
type ProgressSink interface {
	OnProgress(ctx context.Context, job types.Job) error
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(ctx context.Context, job types.Job) error

func (f SinkFunc) OnProgress(ctx context.Context, job types.Job) error { return f(ctx, job) }

// MultiSink fans one update out to several sinks in order. Every sink is called
// even if an earlier one fails.
type MultiSink []ProgressSink

func (m MultiSink) OnProgress(ctx context.Context, job types.Job) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.OnProgress(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
