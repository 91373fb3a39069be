package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"video-docs-go/internal/extractor"
	"video-docs-go/internal/logger"
	"video-docs-go/internal/retry"
	"video-docs-go/internal/transcription"
	"video-docs-go/internal/types"
)

// freshAudio writes a new file per call since each run removes its audio.
type freshAudio struct {
	dir string
}

func (a freshAudio) Acquire(ctx context.Context, sourceRef string) (string, error) {
	f, err := os.CreateTemp(a.dir, "audio-*.mp3")
	if err != nil {
		return "", err
	}
	defer f.Close()
	_, err = f.WriteString("mp3")
	return f.Name(), err
}

// slowTranscriber holds every job in transcription for delay.
type slowTranscriber struct {
	fakeTranscriber
	delay time.Duration
}

func (s *slowTranscriber) Wait(ctx context.Context, id string) (*transcription.Result, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.fakeTranscriber.Wait(ctx, id)
}

// inFlightSink tracks how many jobs are between initializing and a terminal state.
type inFlightSink struct {
	mu      sync.Mutex
	current int
	max     int
}

func (s *inFlightSink) OnProgress(ctx context.Context, job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case job.State == types.StateInitializing:
		s.current++
		if s.current > s.max {
			s.max = s.current
		}
	case job.State.Terminal():
		s.current--
	}
	return nil
}

func newBatchOrchestrator(t *testing.T, delay time.Duration, sink ProgressSink) *Orchestrator {
	t.Helper()
	completer := completerFunc(func(ctx context.Context, req extractor.Request) (string, error) {
		return happyDoc, nil
	})
	return New(Deps{
		Acquirer:    freshAudio{dir: t.TempDir()},
		Transcriber: &slowTranscriber{fakeTranscriber: fakeTranscriber{text: "One. Two."}, delay: delay},
		Extractor:   extractor.New(completer, "fake", retry.Policy{MaxAttempts: 1}, logger.Discard()),
		Sink:        sink,
	}, Options{}, logger.Discard())
}

func TestRunAllBoundsJobsInFlight(t *testing.T) {
	refs := make([]string, 6)
	for i := range refs {
		refs[i] = fmt.Sprintf("https://videos.test/%d", i)
	}

	for _, parallel := range []int{0, 1, 2, 3} {
		t.Run(fmt.Sprintf("parallel=%d", parallel), func(t *testing.T) {
			sink := &inFlightSink{}
			orch := newBatchOrchestrator(t, 20*time.Millisecond, sink)

			var finished int
			jobs := orch.RunAll(context.Background(), refs, parallel, func(types.Job) { finished++ })

			limit := parallel
			if limit < 1 {
				limit = 1
			}
			if sink.max > limit {
				t.Fatalf("max in flight = %d, want <= %d", sink.max, limit)
			}
			if len(jobs) != len(refs) || finished != len(refs) {
				t.Fatalf("jobs = %d, onDone calls = %d, want %d", len(jobs), finished, len(refs))
			}
			for i, job := range jobs {
				if job.SourceRef != refs[i] {
					t.Fatalf("jobs[%d] = %s, want %s", i, job.SourceRef, refs[i])
				}
				if job.State != types.StateCompleted {
					t.Fatalf("jobs[%d] state = %s (err=%+v)", i, job.State, job.Error)
				}
			}
		})
	}
}

func TestRunAllStopsOnCancel(t *testing.T) {
	orch := newBatchOrchestrator(t, time.Hour, &inFlightSink{})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan []types.Job)
	go func() {
		done <- orch.RunAll(ctx, []string{"https://videos.test/a", "https://videos.test/b", "https://videos.test/c"}, 1, nil)
	}()

	select {
	case jobs := <-done:
		if len(jobs) != 1 {
			t.Fatalf("jobs = %d, want only the first to have started", len(jobs))
		}
		if jobs[0].Error == nil || jobs[0].Error.Kind != types.KindCancelled {
			t.Fatalf("job = %+v, want cancelled", jobs[0])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunAll did not return after cancel")
	}
}
