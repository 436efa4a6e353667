package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recording is the root of the pipeline chain. The orchestration columns
// (stage, attempts, claimed_at, error_reason) follow the worker-claim layout:
// claimed_at doubles as the fencing token for the last-writer check, so every
// terminal update must match both status and claimed_at.
type Recording struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID uuid.UUID  `gorm:"type:uuid;column:workspace_id;not null;index" json:"workspace_id"`
	Workspace   *Workspace `gorm:"constraint:OnDelete:CASCADE;foreignKey:WorkspaceID;references:ID" json:"workspace,omitempty"`
	UserID      uuid.UUID  `gorm:"type:uuid;column:user_id;not null;index" json:"user_id"`

	Filename    string  `gorm:"column:filename;not null" json:"filename"`
	Title       string  `gorm:"column:title" json:"title,omitempty"`
	Description string  `gorm:"column:description" json:"description,omitempty"`
	Duration    float64 `gorm:"column:duration;not null;default:0" json:"duration"`
	FilePath    string  `gorm:"column:file_path;not null" json:"file_path"`

	Status      Status     `gorm:"column:status;not null;default:'pending';index" json:"status"`
	Stage       Stage      `gorm:"column:stage;index" json:"stage,omitempty"`
	Attempts    int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	ClaimedAt   *time.Time `gorm:"column:claimed_at;index" json:"claimed_at,omitempty"`
	ErrorReason string     `gorm:"column:error_reason" json:"error_reason,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Recording) TableName() string { return "recordings" }
