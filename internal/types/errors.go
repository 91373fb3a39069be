package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the failure taxonomy surfaced on a job.
type ErrorKind string

const (
	KindAcquisition           ErrorKind = "acquisition_error"
	KindTranscriptionProtocol ErrorKind = "transcription_protocol_error"
	KindTranscriptionFailed   ErrorKind = "transcription_failed"
	KindExtractionParse       ErrorKind = "extraction_parse_error"
	KindExtractionAPI         ErrorKind = "extraction_api_error"
	KindValidation            ErrorKind = "validation_error"
	KindInternal              ErrorKind = "internal_error"
	KindCancelled             ErrorKind = "cancelled"
)

// Sub-kinds of KindExtractionAPI.
const (
	SubKindRateLimit      = "rate_limit"
	SubKindInvalidRequest = "invalid_request"
	SubKindContentFilter  = "content_filter"
	SubKindTimeout        = "timeout"
	SubKindAPI            = "api"
)

// ErrorInfo is the serializable error recorded on a failed job.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	SubKind string    `json:"sub_kind,omitempty"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
}

// Retryable reports whether resubmitting the same input later may succeed.
func (e ErrorInfo) Retryable() bool {
	switch e.Kind {
	case KindAcquisition, KindTranscriptionProtocol, KindCancelled, KindInternal:
		return true
	case KindExtractionAPI:
		return e.SubKind != SubKindInvalidRequest && e.SubKind != SubKindContentFilter
	default:
		return false
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind    ErrorKind
	SubKind string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.SubKind != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.SubKind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a classified error wrapping err.
func NewError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: err, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies err, defaulting to internal_error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// InfoFrom converts any error into the ErrorInfo persisted on a job.
func InfoFrom(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Kind: KindOf(err), Message: err.Error()}
	var e *Error
	if errors.As(err, &e) {
		info.SubKind = e.SubKind
		info.Code = e.Code
		if e.Message != "" {
			info.Message = e.Message
		}
		if info.Code == "" {
			info.Code = lowestCode(e.Err)
		}
	}
	return info
}

type coder interface {
	ErrorCode() string
}

// lowestCode walks the chain and returns the innermost code it finds.
func lowestCode(err error) string {
	code := ""
	for err != nil {
		if c, ok := err.(coder); ok && c.ErrorCode() != "" {
			code = c.ErrorCode()
		}
		err = errors.Unwrap(err)
	}
	return code
}
