package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/platform/dbctx"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

type RecordingRepo interface {
	Create(dbc dbctx.Context, recs []*types.Recording) ([]*types.Recording, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Recording, error)
	GetByWorkspaceID(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Recording, error)

	// ClaimNext picks one claimable recording (pending, a summarize handoff,
	// or a stale processing claim) and transitions it to processing with a
	// fresh claim timestamp. Rows that already failed an attempt in their
	// current stage are held back for retryDelay. Returns nil when nothing
	// is claimable.
	ClaimNext(dbc dbctx.Context, staleAfter, retryDelay time.Duration) (*types.Recording, error)

	// TryClaim performs the conditional claim update against a snapshot of
	// the row. The update only succeeds if status and claimed_at still match
	// the snapshot; a false return means another worker won the race.
	TryClaim(dbc dbctx.Context, snapshot *types.Recording) (*types.Recording, bool, error)

	// FinishWithClaim applies updates only if the row is still processing
	// under the given claim timestamp (the last-writer check). A false
	// return means the claim was lost and nothing was written.
	FinishWithClaim(dbc dbctx.Context, id uuid.UUID, claimedAt time.Time, updates map[string]interface{}) (bool, error)

	// Cancel moves a pending or processing recording to error with the given
	// reason and clears the claim so an in-flight worker's write fails.
	Cancel(dbc dbctx.Context, id uuid.UUID, reason string) (bool, error)

	// ResetForRetry is the sole backward transition: error -> pending.
	ResetForRetry(dbc dbctx.Context, id uuid.UUID) (bool, error)
}

type recordingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecordingRepo(db *gorm.DB, baseLog *logger.Logger) RecordingRepo {
	return &recordingRepo{db: db, log: baseLog.With("repo", "RecordingRepo")}
}

func (r *recordingRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *recordingRepo) Create(dbc dbctx.Context, recs []*types.Recording) ([]*types.Recording, error) {
	if len(recs) == 0 {
		return []*types.Recording{}, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *recordingRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Recording, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var rec types.Recording
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordingRepo) GetByWorkspaceID(dbc dbctx.Context, workspaceID uuid.UUID) ([]*types.Recording, error) {
	var out []*types.Recording
	if workspaceID == uuid.Nil {
		return out, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *recordingRepo) ClaimNext(dbc dbctx.Context, staleAfter, retryDelay time.Duration) (*types.Recording, error) {
	var claimed *types.Recording
	now := time.Now()
	staleCutoff := now.Add(-staleAfter)
	retryCutoff := now.Add(-retryDelay)

	err := r.tx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var rec types.Recording
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (status = ? AND (attempts = 0 OR updated_at < ?))
        OR (status = ? AND stage = ? AND claimed_at IS NULL AND (attempts = 0 OR updated_at < ?))
        OR (status = ? AND claimed_at IS NOT NULL AND claimed_at < ?)
      `, types.StatusPending, retryCutoff,
				types.StatusProcessing, types.StageSummarizing, retryCutoff,
				types.StatusProcessing, staleCutoff).
			Order("created_at ASC")
		if err := q.First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		got, ok, err := r.tryClaimOn(txx, dbc, &rec)
		if err != nil {
			return err
		}
		if ok {
			claimed = got
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *recordingRepo) TryClaim(dbc dbctx.Context, snapshot *types.Recording) (*types.Recording, bool, error) {
	return r.tryClaimOn(r.tx(dbc), dbc, snapshot)
}

func (r *recordingRepo) tryClaimOn(tx *gorm.DB, dbc dbctx.Context, snapshot *types.Recording) (*types.Recording, bool, error) {
	if snapshot == nil || snapshot.ID == uuid.Nil {
		return nil, false, nil
	}

	now := time.Now()
	stage := snapshot.Stage
	if snapshot.Status == types.StatusPending {
		stage = types.StageTranscribing
	}

	q := tx.WithContext(dbc.Ctx).
		Model(&types.Recording{}).
		Where("id = ? AND status = ?", snapshot.ID, snapshot.Status)
	if snapshot.ClaimedAt == nil {
		q = q.Where("claimed_at IS NULL")
	} else {
		q = q.Where("claimed_at = ?", *snapshot.ClaimedAt)
	}

	res := q.Updates(map[string]interface{}{
		"status":     types.StatusProcessing,
		"stage":      stage,
		"claimed_at": now,
		"attempts":   gorm.Expr("attempts + 1"),
		"updated_at": now,
	})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}

	out := *snapshot
	out.Status = types.StatusProcessing
	out.Stage = stage
	out.ClaimedAt = &now
	out.Attempts = snapshot.Attempts + 1
	out.UpdatedAt = now
	return &out, true, nil
}

func (r *recordingRepo) FinishWithClaim(dbc dbctx.Context, id uuid.UUID, claimedAt time.Time, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.Recording{}).
		Where("id = ? AND status = ? AND claimed_at = ?", id, types.StatusProcessing, claimedAt).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *recordingRepo) Cancel(dbc dbctx.Context, id uuid.UUID, reason string) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	now := time.Now()
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.Recording{}).
		Where("id = ? AND status IN ?", id, []types.Status{types.StatusPending, types.StatusProcessing}).
		Updates(map[string]interface{}{
			"status":       types.StatusError,
			"error_reason": reason,
			"claimed_at":   nil,
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *recordingRepo) ResetForRetry(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	now := time.Now()
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.Recording{}).
		Where("id = ? AND status = ?", id, types.StatusError).
		Updates(map[string]interface{}{
			"status":       types.StatusPending,
			"stage":        "",
			"attempts":     0,
			"claimed_at":   nil,
			"error_reason": "",
			"updated_at":   now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
