package domain

// Status is the lifecycle state shared by recordings and transcriptions.
// Transitions only move forward; the single sanctioned backward edge is the
// explicit retry reset (error -> pending) applied by RecordingRepo.ResetForRetry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether from -> to is a legal forward transition.
// pending -> processing -> {completed, error}; nothing skips processing.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing || to == StatusError
	case StatusProcessing:
		// processing -> processing covers stale re-claims.
		return to == StatusProcessing || to == StatusCompleted || to == StatusError
	default:
		return false
	}
}

// Stage selects which pipeline phase a processing recording is in.
type Stage string

const (
	StageTranscribing Stage = "transcribing"
	StageSummarizing  Stage = "summarizing"
)

func (s Stage) Valid() bool {
	return s == StageTranscribing || s == StageSummarizing
}
