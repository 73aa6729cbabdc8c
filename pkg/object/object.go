// Package object defines the storage contract for archive snapshots.
// Implementations include SQLite/libSQL and Cloudflare R2.
package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// Object holds metadata about a stored item.
type Object struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	CustomMeta   map[string]string
}

// Common errors returned by implementations.
var (
	ErrNotFound = errors.New("object not found")
	ErrConflict = errors.New("object already exists")
)

// Lifecycle defines init/teardown behavior.
type Lifecycle interface {
	Init(ctx context.Context, param any) error
	Close(ctx context.Context) error
}

// Storage is the full contract for object backends.
type Storage interface {
	Lifecycle

	// Put stores content under key and returns the stored metadata.
	// sizeHint may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, sizeHint int64, contentType string, meta map[string]string) (Object, error)
	// Get returns object metadata and a stream the caller must close.
	Get(ctx context.Context, key string) (Object, io.ReadCloser, error)
	// List returns the objects whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Stat returns metadata without streaming the body.
	Stat(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) error
}
