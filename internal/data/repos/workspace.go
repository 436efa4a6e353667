package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/platform/dbctx"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

type WorkspaceRepo interface {
	Create(dbc dbctx.Context, workspaces []*types.Workspace) ([]*types.Workspace, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Workspace, error)
	GetByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Workspace, error)
	GetByProjectIDs(dbc dbctx.Context, projectIDs []uuid.UUID) ([]*types.Workspace, error)
}

type workspaceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkspaceRepo(db *gorm.DB, baseLog *logger.Logger) WorkspaceRepo {
	return &workspaceRepo{db: db, log: baseLog.With("repo", "WorkspaceRepo")}
}

func (r *workspaceRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *workspaceRepo) Create(dbc dbctx.Context, workspaces []*types.Workspace) ([]*types.Workspace, error) {
	if len(workspaces) == 0 {
		return []*types.Workspace{}, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(&workspaces).Error; err != nil {
		return nil, err
	}
	return workspaces, nil
}

func (r *workspaceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Workspace, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var w types.Workspace
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *workspaceRepo) GetByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Workspace, error) {
	if projectID == uuid.Nil {
		return []*types.Workspace{}, nil
	}
	return r.GetByProjectIDs(dbc, []uuid.UUID{projectID})
}

func (r *workspaceRepo) GetByProjectIDs(dbc dbctx.Context, projectIDs []uuid.UUID) ([]*types.Workspace, error) {
	var out []*types.Workspace
	if len(projectIDs) == 0 {
		return out, nil
	}
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Where("project_id IN ?", projectIDs).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
