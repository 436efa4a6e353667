package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/minutes-backend/internal/clients/redis"
	"github.com/yungbote/minutes-backend/internal/data/repos"
	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/platform/dbctx"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
	"github.com/yungbote/minutes-backend/internal/storage"
)

// cancelReason is the error_reason recorded when a user cancels a recording.
const cancelReason = "cancelled"

type UploadInput struct {
	WorkspaceID uuid.UUID
	Filename    string
	Title       string
	Description string
	Duration    float64
	Body        io.Reader
}

// RecordingStatus is the poll projection: the recording plus whichever
// derived rows exist so far.
type RecordingStatus struct {
	Recording     *types.Recording     `json:"recording"`
	Transcription *types.Transcription `json:"transcription,omitempty"`
	Summary       *types.Summary       `json:"summary,omitempty"`
}

type RecordingService interface {
	Upload(ctx context.Context, userID uuid.UUID, in UploadInput) (*types.Recording, error)
	Status(ctx context.Context, userID, recordingID uuid.UUID) (*RecordingStatus, error)
	ListByWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) ([]*types.Recording, error)
	Cancel(ctx context.Context, userID, recordingID uuid.UUID) error
	Retry(ctx context.Context, userID, recordingID uuid.UUID) error
}

type recordingService struct {
	db                *gorm.DB
	log               *logger.Logger
	recordingRepo     repos.RecordingRepo
	transcriptionRepo repos.TranscriptionRepo
	summaryRepo       repos.SummaryRepo
	projects          ProjectService
	artifacts         storage.ArtifactStore
	bus               redisclient.EventBus
}

func NewRecordingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	recordingRepo repos.RecordingRepo,
	transcriptionRepo repos.TranscriptionRepo,
	summaryRepo repos.SummaryRepo,
	projects ProjectService,
	artifacts storage.ArtifactStore,
	bus redisclient.EventBus,
) RecordingService {
	return &recordingService{
		db:                db,
		log:               baseLog.With("service", "RecordingService"),
		recordingRepo:     recordingRepo,
		transcriptionRepo: transcriptionRepo,
		summaryRepo:       summaryRepo,
		projects:          projects,
		artifacts:         artifacts,
		bus:               bus,
	}
}

// Upload stores the audio artifact first, then creates the pending row. An
// artifact with no row is garbage; a row with no artifact would fail its
// first claim, so the artifact always wins the ordering.
func (rs *recordingService) Upload(ctx context.Context, userID uuid.UUID, in UploadInput) (*types.Recording, error) {
	filename := sanitizeFilename(in.Filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: filename required", ErrInvalidInput)
	}
	if in.Body == nil {
		return nil, fmt.Errorf("%w: empty upload body", ErrInvalidInput)
	}

	ws, err := rs.projects.AuthorizeWorkspace(ctx, userID, in.WorkspaceID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("recordings/%s/%s_%s", ws.ID, uuid.New(), filename)
	if err := rs.artifacts.Put(ctx, key, in.Body); err != nil {
		return nil, fmt.Errorf("store audio artifact: %w", err)
	}

	recs, err := rs.recordingRepo.Create(dbctx.New(ctx), []*types.Recording{{
		WorkspaceID: ws.ID,
		UserID:      userID,
		Filename:    filename,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Duration:    in.Duration,
		FilePath:    key,
		Status:      types.StatusPending,
	}})
	if err != nil {
		// Best effort: don't leave an orphaned artifact behind.
		if derr := rs.artifacts.Delete(ctx, key); derr != nil {
			rs.log.Warn("Orphaned artifact cleanup failed", "key", key, "error", derr)
		}
		return nil, fmt.Errorf("create recording: %w", err)
	}

	rec := recs[0]
	rs.log.Info("Recording uploaded", "recording_id", rec.ID, "workspace_id", ws.ID, "file_path", key)
	rs.publish(ctx, rec, types.StatusPending, "", "")
	return rec, nil
}

func (rs *recordingService) Status(ctx context.Context, userID, recordingID uuid.UUID) (*RecordingStatus, error) {
	rec, err := rs.authorizeRecording(ctx, userID, recordingID)
	if err != nil {
		return nil, err
	}

	out := &RecordingStatus{Recording: rec}
	dbc := dbctx.New(ctx)

	// Whatever derived rows exist are part of the projection: an error
	// transcription carries the failed stage's reason for pollers.
	tr, err := rs.transcriptionRepo.GetByRecordingID(dbc, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("load transcription: %w", err)
	}
	if tr != nil {
		out.Transcription = tr
		if tr.Status == types.StatusCompleted {
			sum, err := rs.summaryRepo.GetByTranscriptionID(dbc, tr.ID)
			if err != nil {
				return nil, fmt.Errorf("load summary: %w", err)
			}
			out.Summary = sum
		}
	}
	return out, nil
}

func (rs *recordingService) ListByWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) ([]*types.Recording, error) {
	ws, err := rs.projects.AuthorizeWorkspace(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}
	return rs.recordingRepo.GetByWorkspaceID(dbctx.New(ctx), ws.ID)
}

// Cancel revokes the claim as it moves the recording to error, so a worker
// mid-stage loses its conditional write instead of resurrecting the row.
func (rs *recordingService) Cancel(ctx context.Context, userID, recordingID uuid.UUID) error {
	rec, err := rs.authorizeRecording(ctx, userID, recordingID)
	if err != nil {
		return err
	}
	ok, err := rs.recordingRepo.Cancel(dbctx.New(ctx), rec.ID, cancelReason)
	if err != nil {
		return fmt.Errorf("cancel recording: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: recording is not pending or processing", ErrConflict)
	}
	rs.log.Info("Recording cancelled", "recording_id", rec.ID)
	rs.publish(ctx, rec, types.StatusError, rec.Stage, cancelReason)
	return nil
}

func (rs *recordingService) Retry(ctx context.Context, userID, recordingID uuid.UUID) error {
	rec, err := rs.authorizeRecording(ctx, userID, recordingID)
	if err != nil {
		return err
	}
	ok, err := rs.recordingRepo.ResetForRetry(dbctx.New(ctx), rec.ID)
	if err != nil {
		return fmt.Errorf("retry recording: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: only errored recordings can be retried", ErrConflict)
	}
	rs.log.Info("Recording queued for retry", "recording_id", rec.ID)
	rs.publish(ctx, rec, types.StatusPending, "", "")
	return nil
}

func (rs *recordingService) authorizeRecording(ctx context.Context, userID, recordingID uuid.UUID) (*types.Recording, error) {
	rec, err := rs.recordingRepo.GetByID(dbctx.New(ctx), recordingID)
	if err != nil {
		return nil, fmt.Errorf("lookup recording: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: recording", ErrNotFound)
	}
	if _, err := rs.projects.AuthorizeWorkspace(ctx, userID, rec.WorkspaceID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (rs *recordingService) publish(ctx context.Context, rec *types.Recording, status types.Status, stage types.Stage, reason string) {
	if rs.bus == nil {
		return
	}
	err := rs.bus.Publish(ctx, redisclient.StatusEvent{
		RecordingID: rec.ID,
		WorkspaceID: rec.WorkspaceID,
		Status:      status,
		Stage:       stage,
		ErrorReason: reason,
		At:          time.Now(),
	})
	if err != nil {
		rs.log.Warn("Status event publish failed", "recording_id", rec.ID, "error", err)
	}
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
