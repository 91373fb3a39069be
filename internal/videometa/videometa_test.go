package videometa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestParseTitle(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    string
		wantErr bool
	}{
		{"og title", `<html><head><meta property="og:title" content=" Sourdough Basics "><title>ignored</title></head></html>`, "Sourdough Basics", false},
		{"twitter title", `<html><head><meta name="twitter:title" content="Fix a Tap"></head></html>`, "Fix a Tap", false},
		{"title tag", `<html><head><title>Knife Skills - YouTube</title></head></html>`, "Knife Skills", false},
		{"empty og falls back", `<html><head><meta property="og:title" content=""><title>Real</title></head></html>`, "Real", false},
		{"nothing", `<html><body>hi</body></html>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTitle(tt.html)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTitle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetcherTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><meta property="og:title" content="Bike Repair 101"></head></html>`))
	}))
	defer srv.Close()

	got, err := NewFetcher(0).Title(context.Background(), srv.URL)
	if err != nil || got != "Bike Repair 101" {
		t.Fatalf("Title() = %q, %v", got, err)
	}
}

func TestFetcherClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := NewFetcher(0).Title(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", hits.Load())
	}
}
