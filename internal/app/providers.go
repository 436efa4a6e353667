package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/minutes-backend/internal/clients/gcp"
	"github.com/yungbote/minutes-backend/internal/clients/openai"
	"github.com/yungbote/minutes-backend/internal/engine"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
	"github.com/yungbote/minutes-backend/internal/storage"
)

// ResolveArtifactStore picks the artifact backend from config. "disk" keeps
// everything local for development; "gcs" requires RECORDING_GCS_BUCKET_NAME
// and application credentials.
func ResolveArtifactStore(ctx context.Context, log *logger.Logger, cfg Config) (storage.ArtifactStore, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.StorageProvider)) {
	case "", "disk":
		return storage.NewDiskStore(cfg.StorageRoot, log)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("storage provider gcs requires RECORDING_GCS_BUCKET_NAME")
		}
		return gcp.NewBucketStore(ctx, cfg.GCSBucket, log)
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.StorageProvider)
	}
}

// ResolveTranscriber picks the speech-to-text backend from config.
func ResolveTranscriber(ctx context.Context, log *logger.Logger, cfg Config, oa openai.Client) (engine.Transcriber, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.TranscriberProvider)) {
	case "", "whisper", "openai":
		if oa == nil {
			return nil, fmt.Errorf("transcriber provider whisper requires OPENAI_API_KEY")
		}
		return openai.NewWhisperTranscriber(oa, log), nil
	case "gcp", "gcp_speech":
		return gcp.NewSpeechTranscriber(ctx, log)
	default:
		return nil, fmt.Errorf("unsupported transcriber provider %q", cfg.TranscriberProvider)
	}
}
