package sqlite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"olpull/pkg/object"
)

func newTestStorage(t *testing.T, allowOverwrite bool) *Storage {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "snapshots.db")
	src := fmt.Sprintf("file:%s?cache=shared&mode=rwc", dbPath)

	st := &Storage{}
	if err := st.Init(ctx, Config{
		Source:         src,
		AllowOverwrite: allowOverwrite,
	}); err != nil {
		t.Fatalf("init storage: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(ctx) })
	return st
}

func TestSQLiteObjectStorage(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t, true)

	key := "projects/p1/20260101T000000Z.zip"
	content := []byte("PK\x03\x04 not really a zip")
	meta := map[string]string{"project": "p1", "base_url": "https://ol.example.com"}
	contentType := "application/zip"

	putObj, err := st.Put(ctx, key, bytes.NewReader(content), int64(len(content)), contentType, meta)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if putObj.Key != key {
		t.Fatalf("Put: expected key %s got %s", key, putObj.Key)
	}
	if putObj.Size != int64(len(content)) {
		t.Fatalf("Put: expected size %d got %d", len(content), putObj.Size)
	}
	if putObj.ContentType != contentType {
		t.Fatalf("Put: expected content type %s got %s", contentType, putObj.ContentType)
	}

	statObj, err := st.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if statObj.Size != putObj.Size || statObj.ETag != putObj.ETag {
		t.Fatalf("Stat: metadata mismatch, got size %d etag %s", statObj.Size, statObj.ETag)
	}
	for k, v := range meta {
		if statObj.CustomMeta[k] != v {
			t.Fatalf("Stat: expected meta %s=%s got %s", k, v, statObj.CustomMeta[k])
		}
	}

	gotObj, rc, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("Get read: %v", err)
	}
	if !bytes.Equal(body, content) {
		t.Fatalf("Get: content mismatch, got %q want %q", body, content)
	}
	if gotObj.Key != key {
		t.Fatalf("Get: expected key %s got %s", key, gotObj.Key)
	}

	if err := st.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Stat(ctx, key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Stat after delete: expected ErrNotFound got %v", err)
	}
	if _, _, err := st.Get(ctx, key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Get after delete: expected ErrNotFound got %v", err)
	}
	if err := st.Delete(ctx, key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("second Delete: expected ErrNotFound got %v", err)
	}
}

func TestSQLiteListPrefix(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t, true)

	keys := []string{
		"projects/p_1/b.zip",
		"projects/p_1/a.zip",
		"projects/pX1/a.zip",
		"projects/p2/a.zip",
	}
	for _, key := range keys {
		if _, err := st.Put(ctx, key, bytes.NewReader([]byte(key)), -1, "", nil); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}

	// "_" must not act as a wildcard and match pX1.
	objs, err := st.List(ctx, "projects/p_1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("List: expected 2 objects got %d", len(objs))
	}
	if objs[0].Key != "projects/p_1/a.zip" || objs[1].Key != "projects/p_1/b.zip" {
		t.Fatalf("List: unexpected order %s, %s", objs[0].Key, objs[1].Key)
	}

	all, err := st.List(ctx, "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != len(keys) {
		t.Fatalf("List all: expected %d got %d", len(keys), len(all))
	}
}

func TestSQLiteConflict(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t, false) // no overwrite

	key := "conflict-key"
	content := []byte("first")

	if _, err := st.Put(ctx, key, bytes.NewReader(content), int64(len(content)), "", nil); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if _, err := st.Put(ctx, key, bytes.NewReader([]byte("second")), -1, "", nil); !errors.Is(err, object.ErrConflict) {
		t.Fatalf("second Put: expected ErrConflict got %v", err)
	}
}

func TestSQLiteInitErrors(t *testing.T) {
	ctx := context.Background()
	if err := (&Storage{}).Init(ctx, "not a config"); err == nil {
		t.Fatalf("Init: expected error for wrong config type")
	}
	if err := (&Storage{}).Init(ctx, Config{}); err == nil {
		t.Fatalf("Init: expected error for missing source")
	}
	if err := (&Storage{}).Init(ctx, Config{Source: "file::memory:", Table: "bad name"}); err == nil {
		t.Fatalf("Init: expected error for invalid table name")
	}
	if _, err := (&Storage{}).Stat(ctx, "k"); err == nil {
		t.Fatalf("Stat: expected error on uninitialized storage")
	}
}
