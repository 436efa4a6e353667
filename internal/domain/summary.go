package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActionItem is a task extracted from the meeting, owned by its Summary.
type ActionItem struct {
	Description string     `json:"description"`
	Assignee    string     `json:"assignee"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Summary has no status column: a row only exists once summarization
// succeeded for its transcription.
type Summary struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TranscriptionID uuid.UUID      `gorm:"type:uuid;column:transcription_id;not null;index" json:"transcription_id"`
	Transcription   *Transcription `gorm:"constraint:OnDelete:CASCADE;foreignKey:TranscriptionID;references:ID" json:"transcription,omitempty"`

	Overview    string                          `gorm:"column:overview" json:"overview"`
	KeyPoints   datatypes.JSONSlice[string]     `gorm:"column:key_points;type:jsonb" json:"key_points"`
	ActionItems datatypes.JSONSlice[ActionItem] `gorm:"column:action_items;type:jsonb" json:"action_items"`
	Decisions   datatypes.JSONSlice[string]     `gorm:"column:decisions;type:jsonb" json:"decisions"`
	NextSteps   datatypes.JSONSlice[string]     `gorm:"column:next_steps;type:jsonb" json:"next_steps"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Summary) TableName() string { return "summaries" }
