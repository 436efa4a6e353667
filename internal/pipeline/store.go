package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/minutes-backend/internal/domain"
)

// ErrClaimLost reports that the recording's status or claim timestamp no
// longer matched when a worker tried to write. The losing worker must not
// write anything else for that claim.
var ErrClaimLost = errors.New("pipeline: claim lost")

// Store is the persistence surface the orchestrator runs against. The gorm
// implementation backs production; tests substitute an in-memory one.
type Store interface {
	// ClaimNext transitions one claimable recording to processing and
	// returns it, or nil when nothing is due.
	ClaimNext(ctx context.Context, staleAfter, retryDelay time.Duration) (*types.Recording, error)

	GetTranscription(ctx context.Context, recordingID uuid.UUID) (*types.Transcription, error)
	GetSummary(ctx context.Context, transcriptionID uuid.UUID) (*types.Summary, error)

	// FinishTranscribe persists the transcription and advances the recording
	// in one transaction: either the handoff to the summarize stage or the
	// completed terminal state. If the claim was lost nothing is written and
	// ErrClaimLost is returned.
	FinishTranscribe(ctx context.Context, rec *types.Recording, tr *types.Transcription, handoff bool) error

	// FinishSummarize persists the summary and completes the recording in
	// one transaction, with the same claim-loss contract.
	FinishSummarize(ctx context.Context, rec *types.Recording, sum *types.Summary) error

	// Advance moves the recording forward without writing a derived row,
	// used when a re-claimed recording finds its stage output already
	// persisted.
	Advance(ctx context.Context, rec *types.Recording, handoff bool) error

	// Release gives the claim back for a later retry. Transcribe-stage
	// recordings return to pending; summarize-stage recordings stay
	// processing with the claim cleared.
	Release(ctx context.Context, rec *types.Recording) error

	// Fail moves the recording to the error terminal state.
	Fail(ctx context.Context, rec *types.Recording, reason string) error

	// FailTranscribe records a transcribe-stage failure: a Transcription row
	// in the error state with the reason, plus the recording's error state,
	// written in one transaction under the same claim-loss contract as
	// FinishTranscribe.
	FailTranscribe(ctx context.Context, rec *types.Recording, reason string) error
}
