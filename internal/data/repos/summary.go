package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/platform/dbctx"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

type SummaryRepo interface {
	Create(dbc dbctx.Context, sums []*types.Summary) ([]*types.Summary, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Summary, error)
	GetByTranscriptionID(dbc dbctx.Context, transcriptionID uuid.UUID) (*types.Summary, error)
}

type summaryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSummaryRepo(db *gorm.DB, baseLog *logger.Logger) SummaryRepo {
	return &summaryRepo{db: db, log: baseLog.With("repo", "SummaryRepo")}
}

func (r *summaryRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *summaryRepo) Create(dbc dbctx.Context, sums []*types.Summary) ([]*types.Summary, error) {
	if len(sums) == 0 {
		return []*types.Summary{}, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(&sums).Error; err != nil {
		return nil, err
	}
	return sums, nil
}

func (r *summaryRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Summary, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var s types.Summary
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *summaryRepo) GetByTranscriptionID(dbc dbctx.Context, transcriptionID uuid.UUID) (*types.Summary, error) {
	if transcriptionID == uuid.Nil {
		return nil, nil
	}
	var s types.Summary
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("transcription_id = ?", transcriptionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
