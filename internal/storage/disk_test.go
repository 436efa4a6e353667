package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/yungbote/minutes-backend/internal/platform/logger"
)

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), testLog(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	key := "recordings/ws1/standup.wav"
	if err := store.Put(ctx, key, strings.NewReader("fake audio bytes")); err != nil {
		t.Fatalf("put: %v", err)
	}

	rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "fake audio bytes" {
		t.Fatalf("unexpected body %q", body)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDiskStoreMissingKey(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), testLog(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Get(context.Background(), "recordings/none.wav"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDiskStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), testLog(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	// Cleaned paths stay under the root; traversal segments collapse away.
	if err := store.Put(context.Background(), "../outside.wav", strings.NewReader("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Get(context.Background(), "outside.wav"); err != nil {
		t.Fatalf("cleaned key should resolve inside the root: %v", err)
	}
}
