package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Segment is a timed slice of transcript text, owned by its Transcription.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Transcription struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	RecordingID uuid.UUID  `gorm:"type:uuid;column:recording_id;not null;index" json:"recording_id"`
	Recording   *Recording `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordingID;references:ID" json:"recording,omitempty"`

	Text       string  `gorm:"column:text" json:"text"`
	Language   string  `gorm:"column:language" json:"language"`
	Confidence float64 `gorm:"column:confidence;not null;default:0" json:"confidence"`

	Status      Status                       `gorm:"column:status;not null;default:'pending';index" json:"status"`
	ErrorReason string                       `gorm:"column:error_reason" json:"error_reason,omitempty"`
	Segments    datatypes.JSONSlice[Segment] `gorm:"column:segments;type:jsonb" json:"segments"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Transcription) TableName() string { return "transcriptions" }

// ValidateSegments enforces the segment ordering invariant: start <= end per
// segment and non-decreasing starts across the sequence.
func ValidateSegments(segs []Segment) error {
	prevStart := -1.0
	for i, s := range segs {
		if s.Start < 0 || s.End < 0 {
			return fmt.Errorf("segment %d: negative offset", i)
		}
		if s.Start > s.End {
			return fmt.Errorf("segment %d: start %.3f after end %.3f", i, s.Start, s.End)
		}
		if s.Start < prevStart {
			return fmt.Errorf("segment %d: start %.3f before previous start %.3f", i, s.Start, prevStart)
		}
		prevStart = s.Start
	}
	return nil
}

// ValidateConfidence rejects confidence values outside [0,1].
func ValidateConfidence(c float64) error {
	if c < 0 || c > 1 {
		return fmt.Errorf("confidence %.4f outside [0,1]", c)
	}
	return nil
}
