package pipeline

import (
	"context"
	"sync"

	"video-docs-go/internal/types"
)

// RunAll processes refs with at most parallel jobs in flight and returns the final
// snapshot of every job it started, in the order of refs. onDone, when set, is
// called once per finished job and never concurrently. Cancelling ctx stops new
// starts and cancels the jobs in flight.
func (o *Orchestrator) RunAll(ctx context.Context, refs []string, parallel int, onDone func(types.Job)) []types.Job {
	if parallel < 1 {
		parallel = 1
	}
	sem := make(chan struct{}, parallel)
	results := make([]*types.Job, len(refs))

	var (
		wg     sync.WaitGroup
		doneMu sync.Mutex
	)
loop:
	for i, ref := range refs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}
		if ctx.Err() != nil {
			<-sem
			break
		}

		h, err := o.Start(ctx, ref, nil)
		if err != nil {
			<-sem
			o.log.WithError(err).WithField("source_url", ref).Warn("skipping source")
			continue
		}

		wg.Add(1)
		go func(i int, h JobHandle) {
			defer wg.Done()
			defer func() { <-sem }()
			select {
			case <-h.Done():
			case <-ctx.Done():
				_ = o.Cancel(h.ID())
				<-h.Done()
			}
			job := h.Snapshot()
			results[i] = &job
			if onDone != nil {
				doneMu.Lock()
				onDone(job)
				doneMu.Unlock()
			}
		}(i, h)
	}
	wg.Wait()

	jobs := make([]types.Job, 0, len(refs))
	for _, j := range results {
		if j != nil {
			jobs = append(jobs, *j)
		}
	}
	return jobs
}
