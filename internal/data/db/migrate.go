package db

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	types "github.com/yungbote/minutes-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Identity
		&types.User{},

		// Organization
		&types.Project{},
		&types.Workspace{},

		// Pipeline chain
		&types.Recording{},
		&types.Transcription{},
		&types.Summary{},
	)
}

// EnsurePipelineIndexes creates the indexes the claim scan and the uniqueness
// invariants depend on. All statements are idempotent.
func EnsurePipelineIndexes(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}

	// Claim scan: pending rows plus stale/handoff processing rows, oldest first.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_recordings_claim_scan
		ON recordings (status, stage, claimed_at, created_at)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_recordings_claim_scan: %w", err)
	}

	// At most one transcription per recording.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_transcriptions_recording_unique
		ON transcriptions (recording_id)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_transcriptions_recording_unique: %w", err)
	}

	// At most one summary per transcription.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_transcription_unique
		ON summaries (transcription_id)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_summaries_transcription_unique: %w", err)
	}

	return nil
}

// SeedTestUser inserts the development login if it is absent. Part of the
// one-time bootstrap migration, never run by the orchestrator.
func SeedTestUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&types.User{}).Where("email = ?", "test@example.com").Count(&count).Error; err != nil {
		return fmt.Errorf("check test user: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("test123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash test password: %w", err)
	}
	u := &types.User{
		Email:        "test@example.com",
		PasswordHash: string(hash),
		Name:         "Test User",
	}
	if err := db.Create(u).Error; err != nil {
		return fmt.Errorf("create test user: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsurePipelineIndexes(s.db); err != nil {
		s.log.Error("Pipeline index migration failed", "error", err)
		return err
	}
	return nil
}
