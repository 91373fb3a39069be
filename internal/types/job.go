package types

import "time"

// JobState is the pipeline stage a job is in.
type JobState string

const (
	StateInitializing JobState = "initializing"
	StateDownloading  JobState = "downloading"
	StateUploading    JobState = "uploading"
	StateTranscribing JobState = "transcribing"
	StateExtracting   JobState = "extracting"
	StateCompleted    JobState = "completed"
	StateError        JobState = "error"
)

// Terminal reports whether no further transitions can happen from s.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// Valid reports whether s is a known state.
func (s JobState) Valid() bool {
	switch s {
	case StateInitializing, StateDownloading, StateUploading, StateTranscribing,
		StateExtracting, StateCompleted, StateError:
		return true
	}
	return false
}

// Job is one end-to-end request to turn a video reference into a document.
type Job struct {
	ID         string     `json:"id"`
	SourceRef  string     `json:"source_url"`
	Title      string     `json:"title,omitempty"`
	State      JobState   `json:"state"`
	Progress   int        `json:"progress"`
	Transcript *string    `json:"transcript,omitempty"`
	Content    Content    `json:"content,omitempty"`
	RawContent Content    `json:"raw_content,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a deep enough copy that callers can hand it to other goroutines.
func (j Job) Clone() Job {
	out := j
	if j.Transcript != nil {
		t := *j.Transcript
		out.Transcript = &t
	}
	out.Content = j.Content.Clone()
	out.RawContent = j.RawContent.Clone()
	if j.Error != nil {
		e := *j.Error
		out.Error = &e
	}
	return out
}
