package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"video-docs-go/internal/logger"
	"video-docs-go/internal/retry"
	"video-docs-go/internal/types"
)

type fakeService struct {
	statuses []string
	errMsg   string
	polls    atomic.Int32
	uploads  atomic.Int32
	failPoll int32 // number of leading polls answered with 503
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		f.uploads.Add(1)
		if r.Header.Get("authorization") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/octet-stream" {
			t.Errorf("upload content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFFaudio" {
			t.Errorf("upload body = %q", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn/upload/1"})
	})
	mux.HandleFunc("POST /transcript", func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AudioURL != "https://cdn/upload/1" {
			t.Errorf("submit body = %+v err=%v", req, err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "tr-1", "status": StatusQueued})
	})
	mux.HandleFunc("GET /transcript/tr-1", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		if n <= f.failPoll {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		idx := int(n-f.failPoll) - 1
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		resp := map[string]any{"id": "tr-1", "status": f.statuses[idx]}
		switch f.statuses[idx] {
		case StatusCompleted:
			resp["text"] = "Hello there. Second sentence."
			resp["utterances"] = []map[string]string{{"speaker": "A", "text": "Hello there."}}
		case StatusError:
			resp["error"] = f.errMsg
		}
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newTestClient(url string) *Client {
	return New(Config{
		BaseURL:      url,
		APIKey:       "key",
		PollInterval: time.Millisecond,
		Retry:        retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond},
	}, logger.Discard())
}

func audioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, []byte("RIFFaudio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestTranscribeHappyPath(t *testing.T) {
	svc := &fakeService{statuses: []string{StatusQueued, StatusProcessing, StatusCompleted}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Transcribe(context.Background(), audioFile(t))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Text != "Hello there. Second sentence." {
		t.Fatalf("text = %q", res.Text)
	}
	if !strings.Contains(string(res.Utterances), `"speaker":"A"`) {
		t.Fatalf("utterances = %s", res.Utterances)
	}
	if got := svc.polls.Load(); got != 3 {
		t.Fatalf("polls = %d, want 3", got)
	}
}

func TestWaitRemoteErrorIsTranscriptionFailed(t *testing.T) {
	svc := &fakeService{statuses: []string{StatusProcessing, StatusError}, errMsg: "audio unintelligible"}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Wait(context.Background(), "tr-1")
	if types.KindOf(err) != types.KindTranscriptionFailed {
		t.Fatalf("kind = %s, want transcription_failed (err=%v)", types.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "audio unintelligible") {
		t.Fatalf("error %q missing remote message", err)
	}
	var ferr *FailedError
	if !errors.As(err, &ferr) || ferr.Message != "audio unintelligible" {
		t.Fatalf("err = %v, want *FailedError", err)
	}
}

func TestWaitUnknownStatusIsProtocolError(t *testing.T) {
	svc := &fakeService{statuses: []string{"paused"}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Wait(context.Background(), "tr-1")
	if types.KindOf(err) != types.KindTranscriptionProtocol {
		t.Fatalf("kind = %s, want transcription_protocol_error", types.KindOf(err))
	}
	if got := svc.polls.Load(); got != 1 {
		t.Fatalf("polls = %d, want 1 (protocol errors must not keep polling)", got)
	}
}

func TestWaitRetriesServerErrors(t *testing.T) {
	svc := &fakeService{statuses: []string{StatusCompleted}, failPoll: 2}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Wait(context.Background(), "tr-1"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got := svc.polls.Load(); got != 3 {
		t.Fatalf("polls = %d, want 3", got)
	}
}

func TestUploadClientErrorNotRetried(t *testing.T) {
	svc := &fakeService{statuses: []string{StatusCompleted}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.apiKey = "wrong"
	_, err := c.Upload(context.Background(), audioFile(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := svc.uploads.Load(); got != 1 {
		t.Fatalf("uploads = %d, want 1", got)
	}
	if info := types.InfoFrom(err); info.Code != "401" {
		t.Fatalf("code = %q, want 401", info.Code)
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	svc := &fakeService{statuses: []string{StatusProcessing}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.pollInterval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for svc.polls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err := c.Wait(ctx, "tr-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestUploadMissingFile(t *testing.T) {
	_, err := newTestClient("http://unused").Upload(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	if types.KindOf(err) != types.KindAcquisition {
		t.Fatalf("kind = %s, want acquisition_error", types.KindOf(err))
	}
}
