package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	types "github.com/yungbote/minutes-backend/internal/domain"
)

// Hints carries optional knowledge about the audio being transcribed.
// Providers ignore what they cannot use.
type Hints struct {
	Language        string
	MIMEType        string
	SampleRateHertz int
}

// Transcript is the raw output of a transcription provider before it is
// persisted as a Transcription row.
type Transcript struct {
	Text       string
	Language   string
	Confidence float64
	Segments   []types.Segment
}

// Minutes is the structured output of a summarization provider.
type Minutes struct {
	Overview    string             `json:"overview"`
	KeyPoints   []string           `json:"key_points"`
	Decisions   []string           `json:"decisions"`
	NextSteps   []string           `json:"next_steps"`
	ActionItems []types.ActionItem `json:"action_items"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, hints Hints) (*Transcript, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (*Minutes, error)
}

// Failure classifies a provider error for the orchestrator: transient
// failures are retried with backoff, permanent ones fail the recording
// immediately. Reason ends up in the recording's error_reason column.
type Failure struct {
	Reason    string
	Transient bool
	Err       error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return f.Reason
}

func (f *Failure) Unwrap() error { return f.Err }

// TransientFailure wraps an error the caller may retry.
func TransientFailure(reason string, err error) *Failure {
	return &Failure{Reason: reason, Transient: true, Err: err}
}

// PermanentFailure wraps an error retrying cannot fix.
func PermanentFailure(reason string, err error) *Failure {
	return &Failure{Reason: reason, Transient: false, Err: err}
}

// AsFailure extracts a Failure from an error chain. Unclassified errors are
// treated as transient by the orchestrator, so providers should classify
// permanent conditions explicitly.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
