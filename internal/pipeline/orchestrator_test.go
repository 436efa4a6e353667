package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/minutes-backend/internal/domain"
	"github.com/yungbote/minutes-backend/internal/engine"
	"github.com/yungbote/minutes-backend/internal/platform/logger"
	"github.com/yungbote/minutes-backend/internal/storage"
)

// ---- in-memory store with the same conditional-update contract ----

type memStore struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*types.Recording
	trs  map[uuid.UUID]*types.Transcription // by recording id
	sums map[uuid.UUID]*types.Summary       // by transcription id
}

func newMemStore() *memStore {
	return &memStore{
		recs: map[uuid.UUID]*types.Recording{},
		trs:  map[uuid.UUID]*types.Transcription{},
		sums: map[uuid.UUID]*types.Summary{},
	}
}

func (s *memStore) add(rec *types.Recording) *types.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	cp := *rec
	s.recs[rec.ID] = &cp
	return rec
}

func (s *memStore) get(id uuid.UUID) types.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.recs[id]
}

func (s *memStore) setStatus(id uuid.UUID, status types.Status, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recs[id]
	rec.Status = status
	rec.ErrorReason = reason
	rec.ClaimedAt = nil
	rec.UpdatedAt = time.Now()
}

func (s *memStore) ClaimNext(ctx context.Context, staleAfter, retryDelay time.Duration) (*types.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(s.recs))
	for id := range s.recs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.recs[ids[i]].CreatedAt.Before(s.recs[ids[j]].CreatedAt)
	})

	now := time.Now()
	for _, id := range ids {
		rec := s.recs[id]
		claimable := false
		switch {
		case rec.Status == types.StatusPending:
			claimable = rec.Attempts == 0 || now.Sub(rec.UpdatedAt) >= retryDelay
		case rec.Status == types.StatusProcessing && rec.Stage == types.StageSummarizing && rec.ClaimedAt == nil:
			claimable = rec.Attempts == 0 || now.Sub(rec.UpdatedAt) >= retryDelay
		case rec.Status == types.StatusProcessing && rec.ClaimedAt != nil && now.Sub(*rec.ClaimedAt) > staleAfter:
			claimable = true
		}
		if !claimable {
			continue
		}

		if rec.Status == types.StatusPending {
			rec.Stage = types.StageTranscribing
		}
		rec.Status = types.StatusProcessing
		claimedAt := now
		rec.ClaimedAt = &claimedAt
		rec.Attempts++
		rec.UpdatedAt = now
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) GetTranscription(ctx context.Context, recordingID uuid.UUID) (*types.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.trs[recordingID]
	if !ok {
		return nil, nil
	}
	cp := *tr
	return &cp, nil
}

func (s *memStore) GetSummary(ctx context.Context, transcriptionID uuid.UUID) (*types.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.sums[transcriptionID]
	if !ok {
		return nil, nil
	}
	cp := *sum
	return &cp, nil
}

func (s *memStore) holdsClaim(rec *types.Recording) bool {
	cur, ok := s.recs[rec.ID]
	if !ok || cur.Status != types.StatusProcessing || cur.ClaimedAt == nil || rec.ClaimedAt == nil {
		return false
	}
	return cur.ClaimedAt.Equal(*rec.ClaimedAt)
}

func (s *memStore) FinishTranscribe(ctx context.Context, rec *types.Recording, tr *types.Transcription, handoff bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holdsClaim(rec) {
		return ErrClaimLost
	}
	if existing, exists := s.trs[rec.ID]; exists {
		if existing.Status == types.StatusCompleted {
			return fmt.Errorf("duplicate transcription for recording %s", rec.ID)
		}
		tr.ID = existing.ID
	}
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	cp := *tr
	s.trs[rec.ID] = &cp
	s.advanceLocked(rec.ID, handoff)
	return nil
}

func (s *memStore) FailTranscribe(ctx context.Context, rec *types.Recording, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holdsClaim(rec) {
		return ErrClaimLost
	}
	tr, ok := s.trs[rec.ID]
	if !ok {
		tr = &types.Transcription{ID: uuid.New(), RecordingID: rec.ID}
		s.trs[rec.ID] = tr
	}
	tr.Status = types.StatusError
	tr.ErrorReason = reason
	cur := s.recs[rec.ID]
	cur.Status = types.StatusError
	cur.ErrorReason = reason
	cur.ClaimedAt = nil
	cur.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) FinishSummarize(ctx context.Context, rec *types.Recording, sum *types.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holdsClaim(rec) {
		return ErrClaimLost
	}
	if _, exists := s.sums[sum.TranscriptionID]; exists {
		return fmt.Errorf("duplicate summary for transcription %s", sum.TranscriptionID)
	}
	if sum.ID == uuid.Nil {
		sum.ID = uuid.New()
	}
	cp := *sum
	s.sums[sum.TranscriptionID] = &cp
	s.advanceLocked(rec.ID, false)
	return nil
}

func (s *memStore) Advance(ctx context.Context, rec *types.Recording, handoff bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holdsClaim(rec) {
		return ErrClaimLost
	}
	s.advanceLocked(rec.ID, handoff)
	return nil
}

func (s *memStore) advanceLocked(id uuid.UUID, handoff bool) {
	rec := s.recs[id]
	rec.ClaimedAt = nil
	rec.UpdatedAt = time.Now()
	if handoff {
		rec.Stage = types.StageSummarizing
		rec.Attempts = 0
		return
	}
	rec.Status = types.StatusCompleted
	rec.ErrorReason = ""
}

func (s *memStore) Release(ctx context.Context, rec *types.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holdsClaim(rec) {
		return ErrClaimLost
	}
	cur := s.recs[rec.ID]
	cur.ClaimedAt = nil
	cur.UpdatedAt = time.Now()
	if cur.Stage == types.StageTranscribing {
		cur.Status = types.StatusPending
	}
	return nil
}

func (s *memStore) Fail(ctx context.Context, rec *types.Recording, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holdsClaim(rec) {
		return ErrClaimLost
	}
	cur := s.recs[rec.ID]
	cur.Status = types.StatusError
	cur.ErrorReason = reason
	cur.ClaimedAt = nil
	cur.UpdatedAt = time.Now()
	return nil
}

// ---- scripted engines and artifacts ----

type memArtifacts struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemArtifacts() *memArtifacts { return &memArtifacts{m: map[string][]byte{}} }

func (a *memArtifacts) Put(ctx context.Context, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.m[key] = b
	return nil
}

func (a *memArtifacts) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (a *memArtifacts) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.m, key)
	return nil
}

func (a *memArtifacts) URL(key string) string { return "mem://" + key }

type scriptTranscriber struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (*engine.Transcript, error)
}

func (t *scriptTranscriber) Transcribe(ctx context.Context, audio io.Reader, hints engine.Hints) (*engine.Transcript, error) {
	t.mu.Lock()
	t.calls++
	call := t.calls
	t.mu.Unlock()
	return t.fn(call)
}

func (t *scriptTranscriber) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

type scriptSummarizer struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, text string) (*engine.Minutes, error)
}

func (s *scriptSummarizer) Summarize(ctx context.Context, text string) (*engine.Minutes, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fn(call, text)
}

func helloTranscript() *engine.Transcript {
	return &engine.Transcript{
		Text:       "Hello world",
		Language:   "en-US",
		Confidence: 0.92,
		Segments: []types.Segment{
			{Start: 0, End: 1, Text: "Hello"},
			{Start: 1, End: 2, Text: "world"},
		},
	}
}

func helloMinutes() *engine.Minutes {
	return &engine.Minutes{
		Overview:  "Short greeting.",
		KeyPoints: []string{"hello was said"},
	}
}

func testOrch(t *testing.T, store Store, artifacts storage.ArtifactStore, tr engine.Transcriber, su engine.Summarizer, cfg Config) *Orchestrator {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return NewOrchestrator(store, artifacts, tr, su, nil, cfg, log)
}

func seedPending(store *memStore, artifacts *memArtifacts) *types.Recording {
	rec := store.add(&types.Recording{
		WorkspaceID: uuid.New(),
		UserID:      uuid.New(),
		Filename:    "standup.wav",
		FilePath:    "recordings/standup.wav",
		Status:      types.StatusPending,
	})
	_ = artifacts.Put(context.Background(), rec.FilePath, bytes.NewReader([]byte("audio")))
	return rec
}

// drive runs claim/execute rounds until the recording reaches a terminal
// status or the round budget runs out.
func drive(t *testing.T, o *Orchestrator, store *memStore, id uuid.UUID, rounds int) types.Recording {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < rounds; i++ {
		o.runOnce(ctx, o.log)
		if got := store.get(id); got.Status.Terminal() {
			return got
		}
	}
	return store.get(id)
}

func TestPipelineTranscribesAndSummarizes(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := seedPending(store, artifacts)

	tr := &scriptTranscriber{fn: func(int) (*engine.Transcript, error) { return helloTranscript(), nil }}
	su := &scriptSummarizer{fn: func(_ int, text string) (*engine.Minutes, error) {
		if text != "Hello world" {
			t.Errorf("summarizer got %q", text)
		}
		return helloMinutes(), nil
	}}

	o := testOrch(t, store, artifacts, tr, su, Config{SummarizeEnabled: true})
	got := drive(t, o, store, rec.ID, 5)

	if got.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorReason)
	}
	trRow, _ := store.GetTranscription(context.Background(), rec.ID)
	if trRow == nil || trRow.Text != "Hello world" {
		t.Fatalf("transcription not persisted: %+v", trRow)
	}
	sumRow, _ := store.GetSummary(context.Background(), trRow.ID)
	if sumRow == nil || sumRow.Overview != "Short greeting." {
		t.Fatalf("summary not persisted: %+v", sumRow)
	}
	if got.ClaimedAt != nil {
		t.Fatalf("terminal recording still holds a claim")
	}
}

func TestPipelineSummarizeDisabled(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := seedPending(store, artifacts)

	tr := &scriptTranscriber{fn: func(int) (*engine.Transcript, error) { return helloTranscript(), nil }}
	su := &scriptSummarizer{fn: func(int, string) (*engine.Minutes, error) {
		t.Error("summarizer must not run when disabled")
		return nil, errors.New("unreachable")
	}}

	o := testOrch(t, store, artifacts, tr, su, Config{SummarizeEnabled: false})
	got := drive(t, o, store, rec.ID, 3)

	if got.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	trRow, _ := store.GetTranscription(context.Background(), rec.ID)
	if trRow == nil {
		t.Fatalf("transcription missing")
	}
	if sumRow, _ := store.GetSummary(context.Background(), trRow.ID); sumRow != nil {
		t.Fatalf("summary created while disabled: %+v", sumRow)
	}
}

func TestConcurrentWorkersSingleClaim(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := seedPending(store, artifacts)

	tr := &scriptTranscriber{fn: func(int) (*engine.Transcript, error) {
		time.Sleep(10 * time.Millisecond) // hold the claim while others scan
		return helloTranscript(), nil
	}}
	su := &scriptSummarizer{fn: func(int, string) (*engine.Minutes, error) { return helloMinutes(), nil }}
	o := testOrch(t, store, artifacts, tr, su, Config{SummarizeEnabled: false})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runOnce(context.Background(), o.log)
		}()
	}
	wg.Wait()

	if tr.callCount() != 1 {
		t.Fatalf("transcriber ran %d times for one pending recording", tr.callCount())
	}
	if got := store.get(rec.ID); got.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestTransientFailuresRetryWithinBudget(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := seedPending(store, artifacts)

	tr := &scriptTranscriber{fn: func(call int) (*engine.Transcript, error) {
		if call <= 2 {
			return nil, engine.TransientFailure("speech service unavailable", errors.New("503"))
		}
		return helloTranscript(), nil
	}}
	su := &scriptSummarizer{fn: func(int, string) (*engine.Minutes, error) { return helloMinutes(), nil }}
	o := testOrch(t, store, artifacts, tr, su, Config{SummarizeEnabled: false, MaxAttempts: 3})

	got := drive(t, o, store, rec.ID, 6)
	if got.Status != types.StatusCompleted {
		t.Fatalf("expected completed after retries, got %s (%s)", got.Status, got.ErrorReason)
	}
	if tr.callCount() != 3 {
		t.Fatalf("expected exactly 3 transcribe attempts, got %d", tr.callCount())
	}
}

func TestTransientFailureExhaustsAttempts(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := seedPending(store, artifacts)

	tr := &scriptTranscriber{fn: func(int) (*engine.Transcript, error) {
		return nil, engine.TransientFailure("speech service unavailable", errors.New("503"))
	}}
	o := testOrch(t, store, artifacts, tr, nil, Config{SummarizeEnabled: false, MaxAttempts: 3})

	got := drive(t, o, store, rec.ID, 6)
	if got.Status != types.StatusError {
		t.Fatalf("expected error after exhausted budget, got %s", got.Status)
	}
	if tr.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", tr.callCount())
	}
	if got.ErrorReason == "" {
		t.Fatalf("error reason not recorded")
	}
	trRow, _ := store.GetTranscription(context.Background(), rec.ID)
	if trRow == nil || trRow.Status != types.StatusError || trRow.ErrorReason != got.ErrorReason {
		t.Fatalf("exhausted retries left no error transcription: %+v", trRow)
	}
}

func TestRetryOverwritesErrorTranscription(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := seedPending(store, artifacts)

	// A previous run failed and the user reset the recording: the error
	// transcription row is still there and must be replaced, not duplicated.
	store.mu.Lock()
	store.trs[rec.ID] = &types.Transcription{
		ID:          uuid.New(),
		RecordingID: rec.ID,
		Status:      types.StatusError,
		ErrorReason: "audio rejected by speech service",
	}
	store.mu.Unlock()

	tr := &scriptTranscriber{fn: func(int) (*engine.Transcript, error) { return helloTranscript(), nil }}
	o := testOrch(t, store, artifacts, tr, nil, Config{SummarizeEnabled: false})

	got := drive(t, o, store, rec.ID, 3)
	if got.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorReason)
	}
	trRow, _ := store.GetTranscription(context.Background(), rec.ID)
	if trRow == nil || trRow.Status != types.StatusCompleted || trRow.Text != "Hello world" {
		t.Fatalf("error row not overwritten: %+v", trRow)
	}
	if trRow.ErrorReason != "" {
		t.Fatalf("stale error reason survived the retry: %q", trRow.ErrorReason)
	}
}

func TestPermanentFailureDoesNotRetry(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := seedPending(store, artifacts)

	tr := &scriptTranscriber{fn: func(int) (*engine.Transcript, error) {
		return nil, engine.PermanentFailure("audio rejected by speech service", errors.New("400"))
	}}
	o := testOrch(t, store, artifacts, tr, nil, Config{SummarizeEnabled: false, MaxAttempts: 3})

	got := drive(t, o, store, rec.ID, 3)
	if got.Status != types.StatusError {
		t.Fatalf("expected error, got %s", got.Status)
	}
	if tr.callCount() != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", tr.callCount())
	}
	if got.ErrorReason != "audio rejected by speech service" {
		t.Fatalf("unexpected reason %q", got.ErrorReason)
	}

	// The failed stage leaves its own error record behind.
	trRow, _ := store.GetTranscription(context.Background(), rec.ID)
	if trRow == nil {
		t.Fatalf("transcribe failure wrote no transcription row")
	}
	if trRow.Status != types.StatusError || trRow.ErrorReason != "audio rejected by speech service" {
		t.Fatalf("error transcription wrong: status=%s reason=%q", trRow.Status, trRow.ErrorReason)
	}
	if len(trRow.Segments) != 0 || trRow.Text != "" {
		t.Fatalf("partial transcript persisted on failure: %+v", trRow)
	}
}

func TestMissingArtifactFailsPermanently(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := store.add(&types.Recording{
		WorkspaceID: uuid.New(),
		UserID:      uuid.New(),
		Filename:    "gone.wav",
		FilePath:    "recordings/gone.wav",
		Status:      types.StatusPending,
	})

	tr := &scriptTranscriber{fn: func(int) (*engine.Transcript, error) {
		t.Error("transcriber must not run without audio")
		return nil, errors.New("unreachable")
	}}
	o := testOrch(t, store, artifacts, tr, nil, Config{SummarizeEnabled: false})

	got := drive(t, o, store, rec.ID, 2)
	if got.Status != types.StatusError || got.ErrorReason != "audio artifact missing" {
		t.Fatalf("expected artifact-missing error, got %s (%s)", got.Status, got.ErrorReason)
	}
}

func TestClaimLostDiscardsStageResult(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := seedPending(store, artifacts)

	// Cancel arrives while the worker is transcribing: the claim is revoked
	// mid-flight and the worker's finish write must leave no trace.
	tr := &scriptTranscriber{fn: func(int) (*engine.Transcript, error) {
		store.setStatus(rec.ID, types.StatusError, "cancelled")
		return helloTranscript(), nil
	}}
	o := testOrch(t, store, artifacts, tr, nil, Config{SummarizeEnabled: true})

	o.runOnce(context.Background(), o.log)

	got := store.get(rec.ID)
	if got.Status != types.StatusError || got.ErrorReason != "cancelled" {
		t.Fatalf("cancel state overwritten: %s (%s)", got.Status, got.ErrorReason)
	}
	if trRow, _ := store.GetTranscription(context.Background(), rec.ID); trRow != nil {
		t.Fatalf("loser wrote a transcription after losing its claim")
	}
}

func TestReclaimSkipsCompletedTranscription(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := seedPending(store, artifacts)

	// First worker transcribed and committed, then died before anything else;
	// the row went stale while still in the transcribe stage.
	store.mu.Lock()
	old := time.Now().Add(-time.Hour)
	cur := store.recs[rec.ID]
	cur.Status = types.StatusProcessing
	cur.Stage = types.StageTranscribing
	cur.ClaimedAt = &old
	cur.Attempts = 1
	store.trs[rec.ID] = &types.Transcription{
		ID:          uuid.New(),
		RecordingID: rec.ID,
		Text:        "Hello world",
		Status:      types.StatusCompleted,
	}
	store.mu.Unlock()

	tr := &scriptTranscriber{fn: func(int) (*engine.Transcript, error) {
		t.Error("transcriber must not rerun over a committed transcription")
		return nil, errors.New("unreachable")
	}}
	su := &scriptSummarizer{fn: func(int, string) (*engine.Minutes, error) { return helloMinutes(), nil }}
	o := testOrch(t, store, artifacts, tr, su, Config{SummarizeEnabled: true, StaleClaim: time.Minute})

	got := drive(t, o, store, rec.ID, 4)
	if got.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorReason)
	}
	if tr.callCount() != 0 {
		t.Fatalf("transcriber reran %d times", tr.callCount())
	}
}

func TestSummarizerFailurePreservesTranscription(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	rec := seedPending(store, artifacts)

	tr := &scriptTranscriber{fn: func(int) (*engine.Transcript, error) { return helloTranscript(), nil }}
	su := &scriptSummarizer{fn: func(int, string) (*engine.Minutes, error) {
		return nil, engine.PermanentFailure("malformed summary from model", errors.New("bad json"))
	}}
	o := testOrch(t, store, artifacts, tr, su, Config{SummarizeEnabled: true, MaxAttempts: 2})

	got := drive(t, o, store, rec.ID, 5)
	if got.Status != types.StatusError {
		t.Fatalf("expected error, got %s", got.Status)
	}
	trRow, _ := store.GetTranscription(context.Background(), rec.ID)
	if trRow == nil || trRow.Status != types.StatusCompleted {
		t.Fatalf("completed transcription must survive a summarize failure: %+v", trRow)
	}
	if got.ErrorReason != "malformed summary from model" {
		t.Fatalf("unexpected reason %q", got.ErrorReason)
	}
}
