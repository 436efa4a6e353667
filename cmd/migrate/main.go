package main

import (
	"fmt"
	"os"

	"github.com/yungbote/minutes-backend/internal/data/db"
	"github.com/yungbote/minutes-backend/internal/platform/envutil"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

// Bootstrap migration: creates the schema, the pipeline indexes, and the
// development login. Run once before the first server start.
func main() {
	log, err := logger.New(envutil.Str("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Migration failed", "error", err)
		os.Exit(1)
	}
	if envutil.Bool("SEED_TEST_USER", true) {
		if err := db.SeedTestUser(postgresService.DB()); err != nil {
			log.Error("Seeding test user failed", "error", err)
			os.Exit(1)
		}
		log.Info("Test user ready", "email", "test@example.com")
	}
	log.Info("Migration complete")
}
