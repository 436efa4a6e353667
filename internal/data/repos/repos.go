package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

// Repos bundles every repository over a single gorm handle so the services
// and the orchestrator share one wiring point.
type Repos struct {
	User          UserRepo
	Project       ProjectRepo
	Workspace     WorkspaceRepo
	Recording     RecordingRepo
	Transcription TranscriptionRepo
	Summary       SummaryRepo
}

func New(db *gorm.DB, baseLog *logger.Logger) *Repos {
	return &Repos{
		User:          NewUserRepo(db, baseLog),
		Project:       NewProjectRepo(db, baseLog),
		Workspace:     NewWorkspaceRepo(db, baseLog),
		Recording:     NewRecordingRepo(db, baseLog),
		Transcription: NewTranscriptionRepo(db, baseLog),
		Summary:       NewSummaryRepo(db, baseLog),
	}
}
