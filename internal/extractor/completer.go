package extractor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"video-docs-go/internal/types"
)

// Request is one chat-style completion: a system prompt plus the user content.
type Request struct {
	SystemPrompt string
	UserContent  string
}

// Completer is a language model that answers a Request with text, expected to be JSON.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError is a failed model call, classified by sub-kind.
type APIError struct {
	Provider   string
	StatusCode int
	SubKind    string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s api error (%s, status %d): %s", e.Provider, e.SubKind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s api error (%s): %s", e.Provider, e.SubKind, e.Message)
}

func (e *APIError) ErrorCode() string {
	if e.StatusCode == 0 {
		return e.SubKind
	}
	return strconv.Itoa(e.StatusCode)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	switch e.SubKind {
	case types.SubKindRateLimit, types.SubKindTimeout:
		return true
	case types.SubKindAPI:
		return e.StatusCode == 0 || e.StatusCode >= 500
	default:
		return false
	}
}

// subKindForStatus maps an HTTP status onto an extraction_api_error sub-kind.
func subKindForStatus(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return types.SubKindRateLimit
	case http.StatusBadRequest:
		return types.SubKindInvalidRequest
	case http.StatusForbidden:
		return types.SubKindContentFilter
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return types.SubKindTimeout
	default:
		return types.SubKindAPI
	}
}

// classify turns any completer error into an *APIError.
func classify(provider string, err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Provider: provider, SubKind: types.SubKindTimeout, Message: "request timed out"}
	}
	return &APIError{Provider: provider, SubKind: types.SubKindAPI, Message: err.Error()}
}
