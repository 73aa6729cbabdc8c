package mockol

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, url, cookie string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if cookie != "" {
		req.Header.Set("Cookie", "overleaf.sid="+cookie)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestServerProjectPage(t *testing.T) {
	srv := New("sid", Project{ID: "p1", Token: "tok"})
	defer srv.Close()

	_, body := get(t, srv.URL+"/project/p1", "sid", nil)
	if !strings.Contains(string(body), `<meta name="ol-csrfToken" content="tok">`) {
		t.Fatalf("project page: expected token meta, got %s", body)
	}

	_, body = get(t, srv.URL+"/project/p1", "wrong", nil)
	if !strings.Contains(string(body), "Log in - Overleaf") {
		t.Fatalf("project page: expected login page for bad cookie, got %s", body)
	}

	resp, _ := get(t, srv.URL+"/project/missing", "sid", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("project page: expected 404 got %d", resp.StatusCode)
	}
}

func TestServerDownload(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.tex"), []byte("\\documentclass{article}"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	srv := New("sid", Project{ID: "p1", Token: "tok", Dir: dir, Root: "paper"})
	defer srv.Close()

	resp, body := get(t, srv.URL+"/project/p1/download/zip", "sid", nil)
	if resp.Header.Get("Content-Type") != "application/zip" {
		t.Fatalf("download: expected application/zip got %q", resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(body, []byte("PK")) {
		t.Fatalf("download: expected zip body, got %q", body[:min(len(body), 20)])
	}

	srv.RequireCSRF = true
	resp, _ = get(t, srv.URL+"/project/p1/download/zip", "sid", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("download: expected 403 without token got %d", resp.StatusCode)
	}
	resp, _ = get(t, srv.URL+"/project/p1/download/zip", "sid", map[string]string{"X-CSRF-Token": "tok"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download: expected 200 with token got %d", resp.StatusCode)
	}

	reqs := srv.Requests()
	if len(reqs) != 3 || reqs[2].Header.Get("X-CSRF-Token") != "tok" {
		t.Fatalf("Requests: unexpected log %+v", reqs)
	}
}

func TestServerDownloadBody(t *testing.T) {
	srv := New("sid", Project{ID: "p1", Body: []byte("<html>nope</html>")})
	defer srv.Close()

	resp, body := get(t, srv.URL+"/project/p1/download/zip", "sid", nil)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("download: expected html content type got %q", resp.Header.Get("Content-Type"))
	}
	if string(body) != "<html>nope</html>" {
		t.Fatalf("download: unexpected body %q", body)
	}
}
