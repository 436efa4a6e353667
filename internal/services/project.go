package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/minutes-backend/internal/data/repos"
	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/platform/dbctx"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

type ProjectService interface {
	CreateProject(ctx context.Context, ownerID uuid.UUID, name, description string) (*types.Project, error)
	ListProjects(ctx context.Context, ownerID uuid.UUID) ([]*types.Project, error)
	CreateWorkspace(ctx context.Context, ownerID, projectID uuid.UUID, name, description string) (*types.Workspace, error)
	ListWorkspaces(ctx context.Context, ownerID uuid.UUID) ([]*types.Workspace, error)

	// AuthorizeWorkspace returns the workspace if ownerID owns its project.
	AuthorizeWorkspace(ctx context.Context, ownerID, workspaceID uuid.UUID) (*types.Workspace, error)
}

type projectService struct {
	db            *gorm.DB
	log           *logger.Logger
	projectRepo   repos.ProjectRepo
	workspaceRepo repos.WorkspaceRepo
}

func NewProjectService(db *gorm.DB, baseLog *logger.Logger, projectRepo repos.ProjectRepo, workspaceRepo repos.WorkspaceRepo) ProjectService {
	return &projectService{
		db:            db,
		log:           baseLog.With("service", "ProjectService"),
		projectRepo:   projectRepo,
		workspaceRepo: workspaceRepo,
	}
}

func (ps *projectService) CreateProject(ctx context.Context, ownerID uuid.UUID, name, description string) (*types.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name required", ErrInvalidInput)
	}
	projects, err := ps.projectRepo.Create(dbctx.New(ctx), []*types.Project{{
		Name:        name,
		OwnerID:     ownerID,
		Description: strings.TrimSpace(description),
	}})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return projects[0], nil
}

func (ps *projectService) ListProjects(ctx context.Context, ownerID uuid.UUID) ([]*types.Project, error) {
	return ps.projectRepo.GetByOwnerID(dbctx.New(ctx), ownerID)
}

func (ps *projectService) CreateWorkspace(ctx context.Context, ownerID, projectID uuid.UUID, name, description string) (*types.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: workspace name required", ErrInvalidInput)
	}

	dbc := dbctx.New(ctx)
	project, err := ps.projectRepo.GetByID(dbc, projectID)
	if err != nil {
		return nil, fmt.Errorf("lookup project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("%w: project", ErrNotFound)
	}
	if project.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	workspaces, err := ps.workspaceRepo.Create(dbc, []*types.Workspace{{
		Name:        name,
		ProjectID:   projectID,
		Description: strings.TrimSpace(description),
	}})
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return workspaces[0], nil
}

func (ps *projectService) ListWorkspaces(ctx context.Context, ownerID uuid.UUID) ([]*types.Workspace, error) {
	dbc := dbctx.New(ctx)
	projects, err := ps.projectRepo.GetByOwnerID(dbc, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return ps.workspaceRepo.GetByProjectIDs(dbc, ids)
}

func (ps *projectService) AuthorizeWorkspace(ctx context.Context, ownerID, workspaceID uuid.UUID) (*types.Workspace, error) {
	dbc := dbctx.New(ctx)
	ws, err := ps.workspaceRepo.GetByID(dbc, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("lookup workspace: %w", err)
	}
	if ws == nil {
		return nil, fmt.Errorf("%w: workspace", ErrNotFound)
	}
	project, err := ps.projectRepo.GetByID(dbc, ws.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("lookup project: %w", err)
	}
	if project == nil || project.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return ws, nil
}
