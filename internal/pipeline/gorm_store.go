package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/minutes-backend/internal/data/repos"
	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/platform/dbctx"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

type gormStore struct {
	db  *gorm.DB
	r   *repos.Repos
	log *logger.Logger
}

func NewGormStore(db *gorm.DB, r *repos.Repos, baseLog *logger.Logger) Store {
	return &gormStore{
		db:  db,
		r:   r,
		log: baseLog.With("component", "PipelineStore"),
	}
}

func (s *gormStore) ClaimNext(ctx context.Context, staleAfter, retryDelay time.Duration) (*types.Recording, error) {
	return s.r.Recording.ClaimNext(dbctx.New(ctx), staleAfter, retryDelay)
}

func (s *gormStore) GetTranscription(ctx context.Context, recordingID uuid.UUID) (*types.Transcription, error) {
	return s.r.Transcription.GetByRecordingID(dbctx.New(ctx), recordingID)
}

func (s *gormStore) GetSummary(ctx context.Context, transcriptionID uuid.UUID) (*types.Summary, error) {
	return s.r.Summary.GetByTranscriptionID(dbctx.New(ctx), transcriptionID)
}

func (s *gormStore) FinishTranscribe(ctx context.Context, rec *types.Recording, tr *types.Transcription, handoff bool) error {
	if rec.ClaimedAt == nil {
		return ErrClaimLost
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		if err := s.writeTranscription(dbc, tr); err != nil {
			return err
		}
		ok, err := s.r.Recording.FinishWithClaim(dbc, rec.ID, *rec.ClaimedAt, advanceUpdates(handoff))
		if err != nil {
			return err
		}
		if !ok {
			// Rolls back the transcription write too.
			return ErrClaimLost
		}
		return nil
	})
}

func (s *gormStore) FailTranscribe(ctx context.Context, rec *types.Recording, reason string) error {
	if rec.ClaimedAt == nil {
		return ErrClaimLost
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		if err := s.writeTranscription(dbc, &types.Transcription{
			RecordingID: rec.ID,
			Status:      types.StatusError,
			ErrorReason: reason,
		}); err != nil {
			return err
		}
		ok, err := s.r.Recording.FinishWithClaim(dbc, rec.ID, *rec.ClaimedAt, map[string]interface{}{
			"status":       types.StatusError,
			"error_reason": reason,
			"claimed_at":   nil,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrClaimLost
		}
		return nil
	})
}

// writeTranscription creates the recording's transcription row, or overwrites
// the leftover row from a previous errored run. The unique index keeps the
// table at one live row per recording either way.
func (s *gormStore) writeTranscription(dbc dbctx.Context, tr *types.Transcription) error {
	existing, err := s.r.Transcription.GetByRecordingID(dbc, tr.RecordingID)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err = s.r.Transcription.Create(dbc, []*types.Transcription{tr})
		return err
	}
	tr.ID = existing.ID
	return s.r.Transcription.UpdateFields(dbc, existing.ID, map[string]interface{}{
		"text":         tr.Text,
		"language":     tr.Language,
		"confidence":   tr.Confidence,
		"segments":     tr.Segments,
		"status":       tr.Status,
		"error_reason": tr.ErrorReason,
	})
}

func (s *gormStore) FinishSummarize(ctx context.Context, rec *types.Recording, sum *types.Summary) error {
	if rec.ClaimedAt == nil {
		return ErrClaimLost
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		if _, err := s.r.Summary.Create(dbc, []*types.Summary{sum}); err != nil {
			return err
		}
		ok, err := s.r.Recording.FinishWithClaim(dbc, rec.ID, *rec.ClaimedAt, advanceUpdates(false))
		if err != nil {
			return err
		}
		if !ok {
			return ErrClaimLost
		}
		return nil
	})
}

func (s *gormStore) Advance(ctx context.Context, rec *types.Recording, handoff bool) error {
	if rec.ClaimedAt == nil {
		return ErrClaimLost
	}
	ok, err := s.r.Recording.FinishWithClaim(dbctx.New(ctx), rec.ID, *rec.ClaimedAt, advanceUpdates(handoff))
	if err != nil {
		return err
	}
	if !ok {
		return ErrClaimLost
	}
	return nil
}

func (s *gormStore) Release(ctx context.Context, rec *types.Recording) error {
	if rec.ClaimedAt == nil {
		return ErrClaimLost
	}
	updates := map[string]interface{}{
		"claimed_at": nil,
	}
	if rec.Stage == types.StageTranscribing {
		updates["status"] = types.StatusPending
	}
	ok, err := s.r.Recording.FinishWithClaim(dbctx.New(ctx), rec.ID, *rec.ClaimedAt, updates)
	if err != nil {
		return err
	}
	if !ok {
		return ErrClaimLost
	}
	return nil
}

func (s *gormStore) Fail(ctx context.Context, rec *types.Recording, reason string) error {
	if rec.ClaimedAt == nil {
		return ErrClaimLost
	}
	ok, err := s.r.Recording.FinishWithClaim(dbctx.New(ctx), rec.ID, *rec.ClaimedAt, map[string]interface{}{
		"status":       types.StatusError,
		"error_reason": reason,
		"claimed_at":   nil,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrClaimLost
	}
	return nil
}

// advanceUpdates builds the conditional-update payload for moving past a
// stage: handoff releases the claim into the summarize stage with a fresh
// attempt budget, otherwise the recording completes.
func advanceUpdates(handoff bool) map[string]interface{} {
	if handoff {
		return map[string]interface{}{
			"stage":      types.StageSummarizing,
			"claimed_at": nil,
			"attempts":   0,
		}
	}
	return map[string]interface{}{
		"status":       types.StatusCompleted,
		"claimed_at":   nil,
		"error_reason": "",
	}
}
