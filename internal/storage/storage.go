package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports a key with no stored artifact. Callers use errors.Is.
var ErrNotFound = errors.New("storage: artifact not found")

// ArtifactStore holds uploaded audio. Keys are slash-separated paths scoped
// under the recording's workspace, e.g. "recordings/<workspace>/<file>".
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}
