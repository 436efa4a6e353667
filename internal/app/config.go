package app

import (
	"time"

	"github.com/yungbote/minutes-backend/internal/platform/envutil"
)

type Config struct {
	Port    string
	LogMode string

	JWTSecretKey   string
	AccessTokenTTL time.Duration

	StorageProvider string // "disk" | "gcs"
	StorageRoot     string
	GCSBucket       string

	TranscriberProvider string // "whisper" | "gcp_speech"
	SummarizeEnabled    bool
	Language            string

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	StaleClaimAfter    time.Duration
	RetryDelay         time.Duration
	MaxAttempts        int

	RedisEnabled bool
}

func LoadConfig() Config {
	return Config{
		Port:    envutil.Str("PORT", "8080"),
		LogMode: envutil.Str("LOG_MODE", "development"),

		JWTSecretKey:   envutil.Str("JWT_SECRET_KEY", "defaultsecret"),
		AccessTokenTTL: envutil.Duration("ACCESS_TOKEN_TTL", time.Hour),

		StorageProvider: envutil.Str("STORAGE_PROVIDER", "disk"),
		StorageRoot:     envutil.Str("STORAGE_ROOT", "storage"),
		GCSBucket:       envutil.Str("RECORDING_GCS_BUCKET_NAME", ""),

		TranscriberProvider: envutil.Str("TRANSCRIBER_PROVIDER", "whisper"),
		SummarizeEnabled:    envutil.Bool("SUMMARIZE_ENABLED", true),
		Language:            envutil.Str("TRANSCRIBE_LANGUAGE", "en-US"),

		WorkerConcurrency:  envutil.Int("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: envutil.Duration("WORKER_POLL_INTERVAL", time.Second),
		StaleClaimAfter:    envutil.Duration("PIPELINE_STALE_CLAIM_AFTER", 10*time.Minute),
		RetryDelay:         envutil.Duration("PIPELINE_RETRY_DELAY", 30*time.Second),
		MaxAttempts:        envutil.Int("PIPELINE_MAX_ATTEMPTS", 3),

		RedisEnabled: envutil.Bool("REDIS_ENABLED", false),
	}
}
