// Package transcription talks to an AssemblyAI-compatible speech-to-text service:
// upload the audio, submit a transcript request, poll until it settles.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"video-docs-go/internal/logger"
	"video-docs-go/internal/retry"
	"video-docs-go/internal/types"
)

const DefaultBaseURL = "https://api.assemblyai.com/v2"

// Remote transcript statuses. Anything else is a protocol error.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

type Config struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Timeout       time.Duration `yaml:"timeout"`
	SpeakerLabels bool          `yaml:"speaker_labels"`
	Retry         retry.Policy  `yaml:"retry"`
}

// Result is a finished transcript. Utterances are passed through untouched.
type Result struct {
	ID         string          `json:"id"`
	Text       string          `json:"text"`
	Utterances json.RawMessage `json:"utterances,omitempty"`
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type submitRequest struct {
	AudioURL      string `json:"audio_url"`
	SpeakerLabels bool   `json:"speaker_labels,omitempty"`
}

type transcriptResponse struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Text       string          `json:"text"`
	Error      string          `json:"error"`
	Utterances json.RawMessage `json:"utterances"`
}

// HTTPError is a non-2xx answer from the service.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *HTTPError) ErrorCode() string { return strconv.Itoa(e.StatusCode) }

// ProtocolError means the service answered with something outside the known contract.
type ProtocolError struct {
	TranscriptID string
	Status       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("transcript %s: unexpected status %q", e.TranscriptID, e.Status)
}

// FailedError is a remote-reported transcription failure.
type FailedError struct {
	TranscriptID string
	Message      string
}

func (e *FailedError) Error() string {
	return "transcription failed: " + e.Message
}

type Client struct {
	baseURL       string
	apiKey        string
	pollInterval  time.Duration
	speakerLabels bool
	policy        retry.Policy
	httpClient    *http.Client
	log           *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		pollInterval:  cfg.PollInterval,
		speakerLabels: cfg.SpeakerLabels,
		policy:        cfg.Retry,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		log:           log.Component("transcription"),
	}
}

// Transcribe uploads the file, submits it and waits for the transcript.
func (c *Client) Transcribe(ctx context.Context, localPath string) (*Result, error) {
	uploadURL, err := c.Upload(ctx, localPath)
	if err != nil {
		return nil, err
	}
	id, err := c.Submit(ctx, uploadURL)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx, id)
}

// Upload sends the raw audio bytes and returns the service's reference to them.
func (c *Client) Upload(ctx context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", types.NewError(types.KindAcquisition, err, "read audio %s: %v", localPath, err)
	}

	var resp uploadResponse
	err = c.call(ctx, "upload", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		return req, nil
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.UploadURL == "" {
		return "", types.NewError(types.KindTranscriptionProtocol, nil, "upload: response missing upload_url")
	}
	c.log.WithField("bytes", len(data)).Info("audio uploaded")
	return resp.UploadURL, nil
}

// Submit requests a transcript for an uploaded file and returns its id.
func (c *Client) Submit(ctx context.Context, uploadURL string) (string, error) {
	payload, _ := json.Marshal(submitRequest{AudioURL: uploadURL, SpeakerLabels: c.speakerLabels})

	var resp transcriptResponse
	err := c.call(ctx, "submit", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", types.NewError(types.KindTranscriptionProtocol, nil, "submit: response missing id")
	}
	c.log.WithField("transcript_id", resp.ID).Info("transcript submitted")
	return resp.ID, nil
}

// Wait polls the transcript until the service reports completed or error.
func (c *Client) Wait(ctx context.Context, transcriptID string) (*Result, error) {
	log := c.log.WithField("transcript_id", transcriptID)
	for {
		var resp transcriptResponse
		err := c.call(ctx, "poll", func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript/"+transcriptID, nil)
		}, &resp)
		if err != nil {
			return nil, err
		}

		switch resp.Status {
		case StatusCompleted:
			log.WithField("chars", len(resp.Text)).Info("transcript completed")
			return &Result{ID: resp.ID, Text: resp.Text, Utterances: resp.Utterances}, nil
		case StatusError:
			ferr := &FailedError{TranscriptID: transcriptID, Message: resp.Error}
			return nil, &types.Error{Kind: types.KindTranscriptionFailed, Message: ferr.Error(), Err: ferr}
		case StatusQueued, StatusProcessing:
			log.WithField("status", resp.Status).Debug("transcript pending")
		default:
			perr := &ProtocolError{TranscriptID: transcriptID, Status: resp.Status}
			return nil, &types.Error{Kind: types.KindTranscriptionProtocol, Message: perr.Error(), Err: perr}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// call performs one JSON request with retries. 5xx, 429 and transport errors are
// retried; other 4xx and undecodable bodies are not.
func (c *Client) call(ctx context.Context, op string, build func(context.Context) (*http.Request, error), target any) error {
	notify := func(attempt int, err error, wait time.Duration) {
		c.log.WithError(err).WithFields(logrus.Fields{"op": op, "attempt": attempt, "wait": wait.String()}).Warn("transcription call failed, retrying")
	}
	_, err := retry.WithPolicy(ctx, c.policy, func(ctx context.Context) (struct{}, error) {
		req, err := build(ctx)
		if err != nil {
			return struct{}{}, retry.Permanent(err)
		}
		req.Header.Set("authorization", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 300 {
			herr := &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return struct{}{}, herr
			}
			return struct{}{}, retry.Permanent(herr)
		}
		if err := json.Unmarshal(body, target); err != nil {
			return struct{}{}, retry.Permanent(fmt.Errorf("%s: decode response: %w body=%s", op, err, string(body)))
		}
		return struct{}{}, nil
	}, notify)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	return types.NewError(types.KindTranscriptionProtocol, err, "%s: %v", op, err)
}
