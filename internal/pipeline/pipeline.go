// Package pipeline runs jobs end to end: acquire audio, transcribe, extract, merge,
// validate. Every state change is pushed to a ProgressSink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"video-docs-go/internal/acquirer"
	"video-docs-go/internal/chunker"
	"video-docs-go/internal/logger"
	"video-docs-go/internal/merger"
	"video-docs-go/internal/schema"
	"video-docs-go/internal/transcription"
	"video-docs-go/internal/types"
)

// ErrJobNotFound is returned for ids that are unknown or no longer running.
var ErrJobNotFound = errors.New("job not found")

// Progress checkpoints.
const (
	ProgressInitializing = 0
	ProgressDownloading  = 10
	ProgressUploading    = 40
	ProgressTranscribing = 60
	ProgressExtracting   = 70
	ProgressMerging      = 80
	ProgressCompleted    = 100
)

// Transcriber is the speech-to-text service, split so each phase gets its own state.
type Transcriber interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Submit(ctx context.Context, uploadURL string) (string, error)
	Wait(ctx context.Context, transcriptID string) (*transcription.Result, error)
}

// ChunkExtractor turns ordered chunks into ordered extraction results.
type ChunkExtractor interface {
	ExtractAll(ctx context.Context, chunks []chunker.Chunk, s *schema.Schema, concurrency int) ([]types.Content, error)
}

// TitleFetcher looks up a human readable title for a source reference.
type TitleFetcher interface {
	Title(ctx context.Context, sourceRef string) (string, error)
}

type Options struct {
	MaxChunkTokens   int           `yaml:"max_chunk_tokens"`
	ChunkConcurrency int           `yaml:"chunk_concurrency"`
	JobTimeout       time.Duration `yaml:"job_timeout"`
}

// Deps are the collaborators a run needs. Titles and Schemas are optional.
type Deps struct {
	Acquirer    acquirer.AudioAcquirer
	Transcriber Transcriber
	Extractor   ChunkExtractor
	Titles      TitleFetcher
	Sink        ProgressSink
	// Schemas supplies the schema used when Start is called without one.
	Schemas func() *schema.Schema
}

type Orchestrator struct {
	deps Deps
	opts Options
	log  *logger.Logger

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

func New(deps Deps, opts Options, log *logger.Logger) *Orchestrator {
	if opts.MaxChunkTokens <= 0 {
		opts.MaxChunkTokens = 3500
	}
	if opts.ChunkConcurrency <= 0 {
		opts.ChunkConcurrency = 1
	}
	if deps.Sink == nil {
		deps.Sink = MultiSink{}
	}
	if deps.Schemas == nil {
		deps.Schemas = schema.Default
	}
	return &Orchestrator{deps: deps, opts: opts, log: log.Component("pipeline"), runs: map[string]*run{}}
}

// run is the mutable state of one job. mu guards job so a snapshot never mixes
// the state of one transition with the progress of another.
type run struct {
	mu     sync.Mutex
	job    types.Job
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *run) snapshot() types.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.Clone()
}

// JobHandle observes one started job.
type JobHandle struct {
	r *run
}

func (h JobHandle) ID() string { return h.r.snapshot().ID }

// Snapshot returns a copy of the job as it is now.
func (h JobHandle) Snapshot() types.Job { return h.r.snapshot() }

// Done is closed once the job reaches a terminal state.
func (h JobHandle) Done() <-chan struct{} { return h.r.done }

// Start creates a job in the initializing state and processes it in the background.
// The run is detached from ctx's cancellation; use Cancel to stop it.
func (o *Orchestrator) Start(ctx context.Context, sourceRef string, s *schema.Schema) (JobHandle, error) {
	if sourceRef == "" {
		return JobHandle{}, fmt.Errorf("start job: empty source reference")
	}
	if s == nil {
		s = o.deps.Schemas()
	}

	now := time.Now().UTC()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if o.opts.JobTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, o.opts.JobTimeout)
		base := cancel
		cancel = func() { cancelTimeout(); base() }
	}
	r := &run{
		job: types.Job{
			ID:        uuid.NewString(),
			SourceRef: sourceRef,
			State:     types.StateInitializing,
			Progress:  ProgressInitializing,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	o.mu.Lock()
	o.runs[r.job.ID] = r
	o.mu.Unlock()

	o.emit(runCtx, r.snapshot())

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(r.done)
		defer cancel()
		defer o.forget(r.job.ID)
		o.process(runCtx, r, s)
	}()

	return JobHandle{r: r}, nil
}

// Cancel stops a running job. The job ends in the error state with kind cancelled.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	r, ok := o.runs[jobID]
	o.mu.Unlock()
	if !ok || r.snapshot().State.Terminal() {
		return ErrJobNotFound
	}
	r.cancel()
	return nil
}

// Wait blocks until the job finishes and returns its final snapshot.
func (o *Orchestrator) Wait(ctx context.Context, jobID string) (types.Job, error) {
	o.mu.Lock()
	r, ok := o.runs[jobID]
	o.mu.Unlock()
	if !ok {
		return types.Job{}, ErrJobNotFound
	}
	select {
	case <-r.done:
		return r.snapshot(), nil
	case <-ctx.Done():
		return types.Job{}, ctx.Err()
	}
}

// Running returns snapshots of every job still in flight.
func (o *Orchestrator) Running() []types.Job {
	o.mu.Lock()
	runs := make([]*run, 0, len(o.runs))
	for _, r := range o.runs {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	out := make([]types.Job, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.snapshot())
	}
	return out
}

// Shutdown cancels every running job and waits for them to record their final state.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	for _, r := range o.runs {
		r.cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	delete(o.runs, id)
	o.mu.Unlock()
}

func (o *Orchestrator) process(ctx context.Context, r *run, s *schema.Schema) {
	log := o.log.WithJob(r.snapshot().ID)
	start := time.Now()

	content, err := o.execute(ctx, r, s, log)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			err = types.NewError(types.KindInternal, err, "job timed out after %s", o.opts.JobTimeout)
		}
		info := types.InfoFrom(err)
		job := o.transition(ctx, r, func(j *types.Job) {
			j.State = types.StateError
			j.Error = info
		})
		log.WithError(err).WithFields(logrus.Fields{
			"kind":     info.Kind,
			"progress": job.Progress,
			"duration": time.Since(start).String(),
		}).Error("job failed")
		return
	}

	o.transition(ctx, r, func(j *types.Job) {
		j.State = types.StateCompleted
		j.Progress = ProgressCompleted
		j.Content = content
		j.RawContent = nil
	})
	log.WithFields(logrus.Fields{
		"fields":   len(content),
		"duration": time.Since(start).String(),
	}).Info("job completed")
}

func (o *Orchestrator) execute(ctx context.Context, r *run, s *schema.Schema, log *logger.Logger) (types.Content, error) {
	sourceRef := r.snapshot().SourceRef

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.transition(ctx, r, stage(types.StateDownloading, ProgressDownloading))
	if o.deps.Titles != nil && !acquirer.IsLocal(sourceRef) {
		if title, err := o.deps.Titles.Title(ctx, sourceRef); err != nil {
			log.WithError(err).Warn("title lookup failed")
		} else if title != "" {
			o.transition(ctx, r, func(j *types.Job) { j.Title = title })
		}
	}
	audioPath, err := o.deps.Acquirer.Acquire(ctx, sourceRef)
	if err != nil {
		return nil, asKind(err, types.KindAcquisition)
	}
	log.WithField("audio", audioPath).Info("audio acquired")

	if err := ctx.Err(); err != nil {
		o.cleanup(sourceRef, audioPath, log)
		return nil, err
	}
	o.transition(ctx, r, stage(types.StateUploading, ProgressUploading))
	uploadURL, err := o.deps.Transcriber.Upload(ctx, audioPath)
	o.cleanup(sourceRef, audioPath, log)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.transition(ctx, r, stage(types.StateTranscribing, ProgressTranscribing))
	transcriptID, err := o.deps.Transcriber.Submit(ctx, uploadURL)
	if err != nil {
		return nil, err
	}
	result, err := o.deps.Transcriber.Wait(ctx, transcriptID)
	if err != nil {
		return nil, err
	}
	if result.Text == "" {
		return nil, types.NewError(types.KindTranscriptionFailed, nil, "transcript %s is empty", transcriptID)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := result.Text
	o.transition(ctx, r, func(j *types.Job) {
		j.State = types.StateExtracting
		j.Progress = ProgressExtracting
		j.Transcript = &text
	})
	chunks := chunker.Split(text, o.opts.MaxChunkTokens)
	log.WithFields(logrus.Fields{"chunks": len(chunks), "tokens": chunker.EstimateTokens(text)}).Info("extracting")
	results, err := o.deps.Extractor.ExtractAll(ctx, chunks, s, o.opts.ChunkConcurrency)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.transition(ctx, r, stage(types.StateExtracting, ProgressMerging))
	merged := merger.Merge(results)
	if err := schema.Validate(merged, s); err != nil {
		raw := merged.Clone()
		o.transition(ctx, r, func(j *types.Job) { j.RawContent = raw })
		return nil, err
	}
	return merged, nil
}

// cleanup removes downloaded audio. Files the caller pointed at are left alone.
func (o *Orchestrator) cleanup(sourceRef, audioPath string, log *logger.Logger) {
	if acquirer.IsLocal(sourceRef) {
		return
	}
	if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("remove audio file")
	}
}

func stage(state types.JobState, progress int) func(*types.Job) {
	return func(j *types.Job) {
		j.State = state
		j.Progress = progress
	}
}

// transition applies mutate under the run lock and emits the resulting snapshot.
// Progress never moves backwards and terminal jobs are never changed.
func (o *Orchestrator) transition(ctx context.Context, r *run, mutate func(*types.Job)) types.Job {
	r.mu.Lock()
	if r.job.State.Terminal() {
		snap := r.job.Clone()
		r.mu.Unlock()
		return snap
	}
	prev := r.job.Progress
	mutate(&r.job)
	if r.job.Progress < prev {
		r.job.Progress = prev
	}
	r.job.UpdatedAt = time.Now().UTC()
	snap := r.job.Clone()
	r.mu.Unlock()

	o.emit(ctx, snap)
	return snap
}

func (o *Orchestrator) emit(ctx context.Context, job types.Job) {
	// the final error state must still be delivered after cancellation
	if err := o.deps.Sink.OnProgress(context.WithoutCancel(ctx), job); err != nil {
		o.log.WithJob(job.ID).WithError(err).Warn("progress sink failed")
	}
}

// asKind classifies err as kind unless it already carries a kind or is a cancellation.
func asKind(err error, kind types.ErrorKind) error {
	var derr *types.Error
	if errors.As(err, &derr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return types.NewError(kind, err, "%v", err)
}
