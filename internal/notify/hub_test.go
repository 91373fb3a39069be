package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"video-docs-go/internal/logger"
	"video-docs-go/internal/types"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func newTestHub(t *testing.T, jobs []types.Job) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(func(ctx context.Context) ([]types.Job, error) { return jobs, nil }, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func TestHubSendsInitialJobsThenUpdates(t *testing.T) {
	hub, srv := newTestHub(t, []types.Job{{ID: "a", State: types.StateCompleted, Progress: 100}})
	conn := dial(t, srv, "")

	initial := readJSON(t, conn)
	if initial["type"] != "initial_jobs" {
		t.Fatalf("first message = %v", initial)
	}
	if jobs := initial["jobs"].([]any); len(jobs) != 1 {
		t.Fatalf("initial jobs = %v", jobs)
	}

	err := hub.OnProgress(context.Background(), types.Job{
		ID: "b", State: types.StateError, Progress: 40,
		Error: &types.ErrorInfo{Kind: types.KindAcquisition, Message: "gone"},
	})
	if err != nil {
		t.Fatalf("OnProgress() error = %v", err)
	}

	update := readJSON(t, conn)
	if update["type"] != "job_update" || update["job_id"] != "b" || update["state"] != "error" || update["progress"] != float64(40) {
		t.Fatalf("update = %v", update)
	}
	if update["error"].(map[string]any)["kind"] != "acquisition_error" {
		t.Fatalf("error = %v", update["error"])
	}
}

func TestHubFiltersByJobID(t *testing.T) {
	hub, srv := newTestHub(t, []types.Job{{ID: "a"}, {ID: "b"}})
	conn := dial(t, srv, "?job_id=b")

	initial := readJSON(t, conn)
	if jobs := initial["jobs"].([]any); len(jobs) != 1 {
		t.Fatalf("initial jobs = %v, want only b", jobs)
	}

	hub.OnProgress(context.Background(), types.Job{ID: "a", State: types.StateDownloading, Progress: 10})
	hub.OnProgress(context.Background(), types.Job{ID: "b", State: types.StateUploading, Progress: 40})

	if update := readJSON(t, conn); update["job_id"] != "b" {
		t.Fatalf("update = %v, want job b only", update)
	}
}

func TestOnProgressAfterShutdown(t *testing.T) {
	hub := NewHub(nil, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// fill the buffer; a stopped hub must not block callers
	for i := 0; i < cap(hub.broadcast)+1; i++ {
		if err := hub.OnProgress(context.Background(), types.Job{ID: "x"}); err != nil {
			t.Fatalf("OnProgress() error = %v", err)
		}
	}
}

func TestSlowClientDoesNotStallOthers(t *testing.T) {
	hub, srv := newTestHub(t, nil)

	stalled := dial(t, srv, "")
	readJSON(t, stalled) // initial_jobs, then never read again
	watcher := dial(t, srv, "?job_id=fast")
	readJSON(t, watcher)

	title := strings.Repeat("x", 64<<10)
	start := time.Now()
	for i := 0; i < 500; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := hub.OnProgress(ctx, types.Job{ID: "slow", State: types.StateTranscribing, Progress: 60, Title: title})
		cancel()
		if err != nil {
			t.Fatalf("OnProgress(%d) error = %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("broadcasting took %s with a stalled client", elapsed)
	}

	if err := hub.OnProgress(context.Background(), types.Job{ID: "fast", State: types.StateCompleted, Progress: 100}); err != nil {
		t.Fatalf("OnProgress() error = %v", err)
	}
	if update := readJSON(t, watcher); update["job_id"] != "fast" || update["state"] != "completed" {
		t.Fatalf("update = %v", update)
	}
}
