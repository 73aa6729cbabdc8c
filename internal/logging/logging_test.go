package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false)
	log.Debug().Msg("hidden")
	log.Info().Str("project", "p1").Msg("fetching archive")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("New: debug line written at info level: %q", out)
	}
	if !strings.Contains(out, "fetching archive") || !strings.Contains(out, "project=p1") {
		t.Fatalf("New: expected info line with fields, got %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("New: expected no colour for a buffer, got %q", out)
	}

	buf.Reset()
	verbose := New(&buf, true)
	verbose.Debug().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("New: expected debug line when verbose, got %q", buf.String())
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Fatalf("IsTerminal: buffer reported as terminal")
	}
}
