package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	redisclient "github.com/yungbote/minutes-backend/internal/clients/redis"
	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/engine"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
	"github.com/yungbote/minutes-backend/internal/storage"
)

// Notifier publishes status-change events. Publishing is best-effort: the
// pipeline's correctness never depends on it.
type Notifier interface {
	Publish(ctx context.Context, ev redisclient.StatusEvent) error
}

type Config struct {
	Concurrency      int
	PollInterval     time.Duration
	StaleClaim       time.Duration
	RetryDelay       time.Duration
	MaxAttempts      int
	SummarizeEnabled bool
	Language         string
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 1 * time.Second
	}
	if c.StaleClaim <= 0 {
		c.StaleClaim = 10 * time.Minute
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

// Orchestrator drives recordings through the transcribe and summarize stages.
// Workers poll for claimable recordings; every terminal write goes through
// the store's conditional-update path so a lost claim never produces a write.
type Orchestrator struct {
	log         *logger.Logger
	store       Store
	artifacts   storage.ArtifactStore
	transcriber engine.Transcriber
	summarizer  engine.Summarizer
	notifier    Notifier
	cfg         Config
}

func NewOrchestrator(
	store Store,
	artifacts storage.ArtifactStore,
	transcriber engine.Transcriber,
	summarizer engine.Summarizer,
	notifier Notifier,
	cfg Config,
	baseLog *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		log:         baseLog.With("component", "Orchestrator"),
		store:       store,
		artifacts:   artifacts,
		transcriber: transcriber,
		summarizer:  summarizer,
		notifier:    notifier,
		cfg:         cfg.withDefaults(),
	}
}

// Start launches the worker pool. It returns immediately; Wait on the
// returned group to block until the context is cancelled.
func (o *Orchestrator) Start(ctx context.Context) *errgroup.Group {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < o.cfg.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			o.runWorker(ctx, worker)
			return nil
		})
	}
	o.log.Info("Pipeline workers started",
		"concurrency", o.cfg.Concurrency,
		"poll_interval", o.cfg.PollInterval.String(),
		"max_attempts", o.cfg.MaxAttempts,
		"summarize_enabled", o.cfg.SummarizeEnabled,
	)
	return g
}

func (o *Orchestrator) runWorker(ctx context.Context, worker int) {
	log := o.log.With("worker", worker)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain everything claimable before sleeping again.
			for o.runOnce(ctx, log) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// runOnce claims and executes at most one recording. It reports whether a
// claim was won so callers can keep draining.
func (o *Orchestrator) runOnce(ctx context.Context, log *logger.Logger) bool {
	rec, err := o.store.ClaimNext(ctx, o.cfg.StaleClaim, o.cfg.RetryDelay)
	if err != nil {
		log.Warn("Claim scan failed", "error", err)
		return false
	}
	if rec == nil {
		return false
	}

	log = log.With("recording_id", rec.ID, "stage", rec.Stage, "attempt", rec.Attempts)
	o.publish(ctx, rec, types.StatusProcessing, rec.Stage, "")

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Stage handler panic", "panic", r)
				o.settle(ctx, log, rec, engine.TransientFailure("stage handler panic", fmt.Errorf("%v", r)))
			}
		}()
		o.settle(ctx, log, rec, o.execute(ctx, rec))
	}()
	return true
}

func (o *Orchestrator) execute(ctx context.Context, rec *types.Recording) error {
	switch rec.Stage {
	case types.StageTranscribing:
		return o.runTranscribe(ctx, rec)
	case types.StageSummarizing:
		return o.runSummarize(ctx, rec)
	default:
		return engine.PermanentFailure(fmt.Sprintf("unknown stage %q", rec.Stage), nil)
	}
}

// settle turns a stage result into the recording's next state: release for
// retry on transient failures with budget left, error otherwise. A lost
// claim means another worker owns the row now, so nothing is written.
func (o *Orchestrator) settle(ctx context.Context, log *logger.Logger, rec *types.Recording, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrClaimLost) {
		log.Info("Claim lost, discarding stage result")
		return
	}

	reason := "stage failed"
	transient := true
	if f, ok := engine.AsFailure(err); ok {
		reason = f.Reason
		transient = f.Transient
	}

	if transient && rec.Attempts < o.cfg.MaxAttempts {
		log.Warn("Stage failed, releasing for retry", "reason", reason, "error", err)
		if rerr := o.store.Release(ctx, rec); rerr != nil && !errors.Is(rerr, ErrClaimLost) {
			log.Error("Release failed", "error", rerr)
		}
		return
	}

	if transient {
		reason = fmt.Sprintf("%s (after %d attempts)", reason, rec.Attempts)
	}
	log.Error("Stage failed permanently", "reason", reason, "error", err)
	var ferr error
	if rec.Stage == types.StageTranscribing {
		// A failed transcribe stage leaves its own error record, so the
		// status projection can show which stage died and why.
		ferr = o.store.FailTranscribe(ctx, rec, reason)
	} else {
		ferr = o.store.Fail(ctx, rec, reason)
	}
	if ferr != nil {
		if errors.Is(ferr, ErrClaimLost) {
			log.Info("Claim lost before failure write")
			return
		}
		log.Error("Failure write failed", "error", ferr)
		return
	}
	o.publish(ctx, rec, types.StatusError, rec.Stage, reason)
}

func (o *Orchestrator) runTranscribe(ctx context.Context, rec *types.Recording) error {
	handoff := o.cfg.SummarizeEnabled

	// A stale re-claim may find the previous worker's transcription already
	// committed. Advance without transcribing again.
	existing, err := o.store.GetTranscription(ctx, rec.ID)
	if err != nil {
		return engine.TransientFailure("load transcription", err)
	}
	if existing != nil && existing.Status == types.StatusCompleted {
		if err := o.store.Advance(ctx, rec, handoff); err != nil {
			return err
		}
		o.publishAdvance(ctx, rec, handoff)
		return nil
	}

	audio, err := o.artifacts.Get(ctx, rec.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return engine.PermanentFailure("audio artifact missing", err)
		}
		return engine.TransientFailure("artifact store unavailable", err)
	}
	defer audio.Close()

	result, err := o.transcriber.Transcribe(ctx, audio, engine.Hints{
		Language: o.cfg.Language,
		MIMEType: mime.TypeByExtension(filepath.Ext(rec.Filename)),
	})
	if err != nil {
		return err
	}
	if verr := domainValidate(result); verr != nil {
		return engine.PermanentFailure("invalid transcript", verr)
	}

	tr := &types.Transcription{
		RecordingID: rec.ID,
		Text:        result.Text,
		Language:    result.Language,
		Confidence:  result.Confidence,
		Status:      types.StatusCompleted,
		Segments:    datatypes.NewJSONSlice(result.Segments),
	}
	if err := o.store.FinishTranscribe(ctx, rec, tr, handoff); err != nil {
		return err
	}
	o.publishAdvance(ctx, rec, handoff)
	return nil
}

func (o *Orchestrator) runSummarize(ctx context.Context, rec *types.Recording) error {
	tr, err := o.store.GetTranscription(ctx, rec.ID)
	if err != nil {
		return engine.TransientFailure("load transcription", err)
	}
	if tr == nil || tr.Status != types.StatusCompleted {
		return engine.PermanentFailure("transcription missing for summarize stage", nil)
	}

	existing, err := o.store.GetSummary(ctx, tr.ID)
	if err != nil {
		return engine.TransientFailure("load summary", err)
	}
	if existing != nil {
		if err := o.store.Advance(ctx, rec, false); err != nil {
			return err
		}
		o.publish(ctx, rec, types.StatusCompleted, rec.Stage, "")
		return nil
	}

	minutes, err := o.summarizer.Summarize(ctx, tr.Text)
	if err != nil {
		return err
	}

	sum := &types.Summary{
		TranscriptionID: tr.ID,
		Overview:        minutes.Overview,
		KeyPoints:       datatypes.NewJSONSlice(minutes.KeyPoints),
		Decisions:       datatypes.NewJSONSlice(minutes.Decisions),
		NextSteps:       datatypes.NewJSONSlice(minutes.NextSteps),
		ActionItems:     datatypes.NewJSONSlice(minutes.ActionItems),
	}
	if err := o.store.FinishSummarize(ctx, rec, sum); err != nil {
		return err
	}
	o.publish(ctx, rec, types.StatusCompleted, rec.Stage, "")
	return nil
}

func domainValidate(tr *engine.Transcript) error {
	if err := types.ValidateSegments(tr.Segments); err != nil {
		return err
	}
	return types.ValidateConfidence(tr.Confidence)
}

func (o *Orchestrator) publishAdvance(ctx context.Context, rec *types.Recording, handoff bool) {
	if handoff {
		o.publish(ctx, rec, types.StatusProcessing, types.StageSummarizing, "")
		return
	}
	o.publish(ctx, rec, types.StatusCompleted, rec.Stage, "")
}

func (o *Orchestrator) publish(ctx context.Context, rec *types.Recording, status types.Status, stage types.Stage, reason string) {
	if o.notifier == nil {
		return
	}
	ev := redisclient.StatusEvent{
		RecordingID: rec.ID,
		WorkspaceID: rec.WorkspaceID,
		Status:      status,
		Stage:       stage,
		ErrorReason: reason,
		At:          time.Now(),
	}
	if err := o.notifier.Publish(ctx, ev); err != nil {
		o.log.Warn("Status event publish failed", "recording_id", rec.ID, "error", err)
	}
}
