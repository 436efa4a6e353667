package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/platform/dbctx"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

type TranscriptionRepo interface {
	Create(dbc dbctx.Context, trs []*types.Transcription) ([]*types.Transcription, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Transcription, error)

	// GetByRecordingID returns the recording's transcription or nil. The
	// unique partial index guarantees at most one live row per recording.
	GetByRecordingID(dbc dbctx.Context, recordingID uuid.UUID) (*types.Transcription, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type transcriptionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTranscriptionRepo(db *gorm.DB, baseLog *logger.Logger) TranscriptionRepo {
	return &transcriptionRepo{db: db, log: baseLog.With("repo", "TranscriptionRepo")}
}

func (r *transcriptionRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *transcriptionRepo) Create(dbc dbctx.Context, trs []*types.Transcription) ([]*types.Transcription, error) {
	if len(trs) == 0 {
		return []*types.Transcription{}, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(&trs).Error; err != nil {
		return nil, err
	}
	return trs, nil
}

func (r *transcriptionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Transcription, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var tr types.Transcription
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&tr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

func (r *transcriptionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&types.Transcription{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *transcriptionRepo) GetByRecordingID(dbc dbctx.Context, recordingID uuid.UUID) (*types.Transcription, error) {
	if recordingID == uuid.Nil {
		return nil, nil
	}
	var tr types.Transcription
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("recording_id = ?", recordingID).First(&tr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tr, nil
}
