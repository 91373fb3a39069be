package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"video-docs-go/internal/types"
)

func TestOpenAICompleteSendsChatRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "gpt-test" || len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "transcript" {
			t.Errorf("request = %+v", req)
		}
		if req.ResponseFormat["type"] != "json_object" {
			t.Errorf("response_format = %v", req.ResponseFormat)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"title\":\"X\"}"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test"})
	out, err := o.Complete(context.Background(), Request{SystemPrompt: "sys", UserContent: "transcript"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != `{"title":"X"}` {
		t.Fatalf("out = %q", out)
	}
}

func TestOpenAICompleteStatusClassification(t *testing.T) {
	tests := []struct {
		status  int
		wantSub string
	}{
		{429, types.SubKindRateLimit},
		{400, types.SubKindInvalidRequest},
		{403, types.SubKindContentFilter},
		{500, types.SubKindAPI},
		{504, types.SubKindTimeout},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
			}))
			defer srv.Close()

			_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Complete(context.Background(), Request{})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.SubKind != tt.wantSub || apiErr.Message != "nope" || apiErr.StatusCode != tt.status {
				t.Fatalf("apiErr = %+v", apiErr)
			}
		})
	}
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}).Complete(context.Background(), Request{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Retryable() {
		t.Fatalf("err = %v, want retryable *APIError", err)
	}
}
