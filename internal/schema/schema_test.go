package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"video-docs-go/internal/logger"
)

func TestParseRoundTripsDefault(t *testing.T) {
	s, err := Parse([]byte(Default().JSON()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(s.Required) != 3 || s.Properties["difficulty"] == nil {
		t.Fatalf("unexpected schema: %+v", s)
	}
	if got := s.Properties["sections"].Items.Properties["steps"].Items.Required; len(got) != 2 {
		t.Fatalf("step required = %v", got)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse([]byte(`{}`)); err == nil {
		t.Fatal("expected error for empty schema")
	}
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestStoreWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := os.WriteFile(path, []byte(`{"type":"object","required":["title"]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := NewStore(nil, path, logger.Discard())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if got := store.Current().Required; len(got) != 1 {
		t.Fatalf("required = %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()

	// give the watcher a moment to register before writing
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"type":"object","required":["title","summary"]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.Current().Required) == 2 {
			cancel()
			<-done
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("schema was not reloaded")
}

func TestNewStoreWithoutPathUsesDefault(t *testing.T) {
	store, err := NewStore(nil, "", logger.Discard())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if store.Current().Properties["title"] == nil {
		t.Fatal("expected default schema")
	}
}
