package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"olpull/pkg/object"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	src := fmt.Sprintf("file:%s?mode=rwc", filepath.Join(t.TempDir(), "snapshots.db"))

	st, err := Open(ctx, Config{Driver: "sqlite", Source: src})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(ctx) })
	return st
}

func TestKey(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.FixedZone("X", 3600))
	got := Key("abc123", ts)
	want := "projects/abc123/20260304T040607.008Z.zip"
	if got != want {
		t.Fatalf("Key: expected %q got %q", want, got)
	}
	if p := ProjectFromKey(got); p != "abc123" {
		t.Fatalf("ProjectFromKey: expected %q got %q", "abc123", p)
	}
	if p := ProjectFromKey("elsewhere/x.zip"); p != "" {
		t.Fatalf("ProjectFromKey: expected empty got %q", p)
	}
	if Prefix("") != "projects/" {
		t.Fatalf("Prefix: expected projects/ got %q", Prefix(""))
	}
}

func TestSaveListLoad(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first := []byte("PK first")
	second := []byte("PK second")
	if _, err := st.Save(ctx, "p1", "https://ol.example.com", first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	saved, err := st.Save(ctx, "p1", "https://ol.example.com", second)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := st.Save(ctx, "p2", "https://ol.example.com", first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if saved.CustomMeta["project"] != "p1" || saved.CustomMeta["base_url"] != "https://ol.example.com" {
		t.Fatalf("Save: unexpected metadata %v", saved.CustomMeta)
	}
	if saved.ContentType != "application/zip" {
		t.Fatalf("Save: expected application/zip got %q", saved.ContentType)
	}

	objs, err := st.List(ctx, "p1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("List: expected 2 snapshots got %d", len(objs))
	}
	if objs[1].Key != saved.Key {
		t.Fatalf("List: expected newest last, got %s", objs[1].Key)
	}

	all, err := st.List(ctx, "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List all: expected 3 snapshots got %d", len(all))
	}

	data, err := st.Load(ctx, saved.Key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(data, second) {
		t.Fatalf("Load: expected %q got %q", second, data)
	}

	if _, err := st.Load(ctx, "projects/p1/missing.zip"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Load missing: expected ErrNotFound got %v", err)
	}
}

func TestStatDelete(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	saved, err := st.Save(ctx, "p1", "https://ol.example.com", []byte("PK data"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	obj, err := st.Stat(ctx, saved.Key)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if obj.Size != 7 || obj.CustomMeta["project"] != "p1" {
		t.Fatalf("Stat: unexpected object %+v", obj)
	}

	if err := st.Delete(ctx, saved.Key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := st.Stat(ctx, saved.Key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Stat after delete: expected ErrNotFound got %v", err)
	}
	if err := st.Delete(ctx, saved.Key); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("Delete twice: expected ErrNotFound got %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "ftp"}); err == nil {
		t.Fatalf("Open: expected error for unknown driver")
	}
}
