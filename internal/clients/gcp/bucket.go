package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/minutes-backend/internal/platform/logger"
	"github.com/yungbote/minutes-backend/internal/storage"
)

// BucketStore is the GCS-backed ArtifactStore. One bucket holds every
// recording artifact, keyed by the same slash paths the disk store uses.
type BucketStore struct {
	log    *logger.Logger
	client *gcstorage.Client
	bucket string
}

func NewBucketStore(ctx context.Context, bucket string, baseLog *logger.Logger) (*BucketStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket name required")
	}
	opts := ClientOptionsFromEnv()
	opts = append(opts, option.WithScopes(gcstorage.ScopeReadWrite))
	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &BucketStore{
		log:    baseLog.With("service", "BucketStore", "bucket", bucket),
		client: client,
		bucket: bucket,
	}, nil
}

func (s *BucketStore) Put(ctx context.Context, key string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer for %q: %w", key, err)
	}
	return nil
}

// The reader's context must outlive this call, so cancel is attached to
// Close instead of deferred.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (s *BucketStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx2, cancel := context.WithTimeout(ctx, 30*time.Minute)

	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx2)
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		cancel()
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open gcs reader for %q: %w", key, err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *BucketStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("delete gcs object %q: %w", key, err)
	}
	return nil
}

func (s *BucketStore) URL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

func (s *BucketStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
