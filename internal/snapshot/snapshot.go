// Package snapshot keeps copies of downloaded project archives in an object
// store so they can be listed and restored later.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"olpull/pkg/object"
	"olpull/pkg/r2"
	"olpull/pkg/sqlite"
)

const (
	keyPrefix   = "projects/"
	timeLayout  = "20060102T150405.000Z"
	contentType = "application/zip"
)

// Config selects and configures the backend.
type Config struct {
	// Driver is "sqlite", "libsql" or "r2".
	Driver string
	// Source is the database DSN for sqlite and libsql.
	Source string
	R2     r2.Config
}

// Store saves and loads archive snapshots.
type Store struct {
	backend object.Storage
	now     func() time.Time
}

// New wraps an already initialised backend.
func New(backend object.Storage) *Store {
	return &Store{backend: backend, now: time.Now}
}

// Open initialises the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var backend object.Storage
	var param any
	switch cfg.Driver {
	case "", "sqlite", "libsql":
		driver := cfg.Driver
		if driver == "" {
			driver = "sqlite"
		}
		backend = &sqlite.Storage{}
		param = sqlite.Config{Driver: driver, Source: cfg.Source}
	case "r2":
		backend = &r2.Storage{}
		param = cfg.R2
	default:
		return nil, fmt.Errorf("snapshot: unknown driver %q", cfg.Driver)
	}

	if err := backend.Init(ctx, param); err != nil {
		return nil, err
	}
	return New(backend), nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

// Key returns the storage key of a snapshot of projectID taken at t.
func Key(projectID string, t time.Time) string {
	return Prefix(projectID) + t.UTC().Format(timeLayout) + ".zip"
}

// Prefix returns the key prefix of every snapshot of projectID, or of all
// snapshots when projectID is empty.
func Prefix(projectID string) string {
	if projectID == "" {
		return keyPrefix
	}
	return keyPrefix + projectID + "/"
}

// ProjectFromKey returns the project ID encoded in a snapshot key.
func ProjectFromKey(key string) string {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return ""
	}
	project, _, _ := strings.Cut(rest, "/")
	return project
}

// Save stores data as a new snapshot of projectID.
func (s *Store) Save(ctx context.Context, projectID, baseURL string, data []byte) (object.Object, error) {
	now := s.now().UTC()
	meta := map[string]string{
		"project":    projectID,
		"base_url":   baseURL,
		"fetched_at": now.Format(time.RFC3339),
	}
	obj, err := s.backend.Put(ctx, Key(projectID, now), bytes.NewReader(data), int64(len(data)), contentType, meta)
	if err != nil {
		return object.Object{}, fmt.Errorf("snapshot: save %s: %w", projectID, err)
	}
	return obj, nil
}

// List returns the snapshots of projectID, oldest first. An empty projectID
// lists every project.
func (s *Store) List(ctx context.Context, projectID string) ([]object.Object, error) {
	objs, err := s.backend.List(ctx, Prefix(projectID))
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	return objs, nil
}

// Load returns the archive bytes stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", key, err)
	}
	return data, nil
}

// Stat returns the stored metadata of the snapshot under key.
func (s *Store) Stat(ctx context.Context, key string) (object.Object, error) {
	obj, err := s.backend.Stat(ctx, key)
	if err != nil {
		return object.Object{}, fmt.Errorf("snapshot: stat %s: %w", key, err)
	}
	return obj, nil
}

// Delete removes the snapshot under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("snapshot: delete %s: %w", key, err)
	}
	return nil
}
