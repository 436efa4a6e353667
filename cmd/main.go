package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/minutes-backend/internal/app"
	"github.com/yungbote/minutes-backend/internal/clients/openai"
	redisclient "github.com/yungbote/minutes-backend/internal/clients/redis"
	"github.com/yungbote/minutes-backend/internal/data/db"
	"github.com/yungbote/minutes-backend/internal/data/repos"
	"github.com/yungbote/minutes-backend/internal/engine"
	"github.com/yungbote/minutes-backend/internal/handlers"
	"github.com/yungbote/minutes-backend/internal/middleware"
	"github.com/yungbote/minutes-backend/internal/pipeline"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
	"github.com/yungbote/minutes-backend/internal/server"
	"github.com/yungbote/minutes-backend/internal/services"
)

func main() {
	cfg := app.LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	allRepos := repos.New(thePG, log)

	// Clients
	log.Info("Setting up clients from main...")
	artifacts, err := app.ResolveArtifactStore(ctx, log, cfg)
	if err != nil {
		log.Error("Artifact store init failed", "provider", cfg.StorageProvider, "error", err)
		os.Exit(1)
	}

	var openaiClient openai.Client
	if os.Getenv("OPENAI_API_KEY") != "" {
		openaiClient, err = openai.NewClient(log)
		if err != nil {
			log.Error("OpenAI client init failed", "error", err)
			os.Exit(1)
		}
	}

	transcriber, err := app.ResolveTranscriber(ctx, log, cfg, openaiClient)
	if err != nil {
		log.Error("Transcriber init failed", "provider", cfg.TranscriberProvider, "error", err)
		os.Exit(1)
	}

	var summarizer engine.Summarizer
	if cfg.SummarizeEnabled {
		if openaiClient == nil {
			log.Error("Summarization enabled but OPENAI_API_KEY is not set")
			os.Exit(1)
		}
		summarizer = openai.NewMinutesSummarizer(openaiClient, log)
	}

	var bus redisclient.EventBus
	if cfg.RedisEnabled {
		bus, err = redisclient.NewEventBus(log)
		if err != nil {
			log.Warn("Redis event bus init failed, status events disabled", "error", err)
			bus = nil
		}
	}

	// Services
	log.Info("Setting up services from main...")
	authService := services.NewAuthService(thePG, log, allRepos.User, cfg.JWTSecretKey, cfg.AccessTokenTTL)
	projectService := services.NewProjectService(thePG, log, allRepos.Project, allRepos.Workspace)
	recordingService := services.NewRecordingService(
		thePG,
		log,
		allRepos.Recording,
		allRepos.Transcription,
		allRepos.Summary,
		projectService,
		artifacts,
		bus,
	)

	// Pipeline
	log.Info("Starting pipeline workers from main...")
	store := pipeline.NewGormStore(thePG, allRepos, log)
	var notifier pipeline.Notifier
	if bus != nil {
		notifier = bus
	}
	orchestrator := pipeline.NewOrchestrator(store, artifacts, transcriber, summarizer, notifier, pipeline.Config{
		Concurrency:      cfg.WorkerConcurrency,
		PollInterval:     cfg.WorkerPollInterval,
		StaleClaim:       cfg.StaleClaimAfter,
		RetryDelay:       cfg.RetryDelay,
		MaxAttempts:      cfg.MaxAttempts,
		SummarizeEnabled: cfg.SummarizeEnabled,
		Language:         cfg.Language,
	}, log)
	orchestrator.Start(ctx)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(authService)
	projectHandler := handlers.NewProjectHandler(projectService)
	recordingHandler := handlers.NewRecordingHandler(recordingService)
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:      authHandler,
		AuthMiddleware:   authMiddleware,
		ProjectHandler:   projectHandler,
		RecordingHandler: recordingHandler,
	})

	fmt.Printf("Server listening on :%s\n", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
