// Package mockol runs a small fake Overleaf instance for tests. It serves the
// project editor page and the project zip download behind a session cookie.
package mockol

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"sync"

	"olpull/internal/archive"
)

// Project is one project known to the server.
type Project struct {
	ID string
	// Token is embedded in the editor page as ol-csrfToken. Empty leaves the
	// meta tag out.
	Token string
	// Page, when set, is served as the project page instead of EditorPage.
	Page string
	// Dir is packed into the download zip below Root.
	Dir  string
	Root string
	// Body, when set, is served from the download route instead of a zip.
	Body        []byte
	ContentType string
}

// Request is a request seen by the server.
type Request struct {
	Method string
	Path   string
	Header http.Header
}

// Server wraps an httptest.Server.
type Server struct {
	*httptest.Server

	// Cookie is the overleaf.sid value the server accepts.
	Cookie string
	// RequireCSRF rejects downloads that do not carry the project token.
	RequireCSRF bool

	mu       sync.Mutex
	projects map[string]Project
	requests []Request
}

// New starts a server accepting cookie and serving projects.
func New(cookie string, projects ...Project) *Server {
	s := &Server{
		Cookie:   cookie,
		projects: make(map[string]Project, len(projects)),
	}
	for _, p := range projects {
		s.projects[p.ID] = p
	}

	// Mux definition start
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", s.loginPage)
	handle(mux, "GET /project/{id}", http.HandlerFunc(s.projectPage), s.record, s.requireSession)
	handle(mux, "GET /project/{id}/download/zip", http.HandlerFunc(s.download), s.record, s.requireSession, s.requireCSRF)
	// Mux definition end

	s.Server = httptest.NewServer(mux)
	return s
}

// Requests returns the requests made to project routes so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) project(r *http.Request) (Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[r.PathValue("id")]
	return p, ok
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(LoginPage))
}

func (s *Server) projectPage(w http.ResponseWriter, r *http.Request) {
	p, ok := s.project(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	page := p.Page
	if page == "" {
		page = EditorPage(p.Token)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	p, ok := s.project(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if p.Body != nil {
		contentType := p.ContentType
		if contentType == "" {
			contentType = "text/html; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(p.Body)
		return
	}

	var buf bytes.Buffer
	if err := archive.Pack(&buf, p.Dir, p.Root); err != nil {
		http.Error(w, fmt.Sprintf("pack project: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", p.Root+".zip"))
	w.Write(buf.Bytes())
}

// LoginPage is served to requests without a valid session.
const LoginPage = `<!DOCTYPE html>
<html><head><title>Log in - Overleaf</title></head>
<body><form action="/login" method="post"></form></body></html>`

// EditorPage renders a minimal project page carrying token.
func EditorPage(token string) string {
	meta := ""
	if token != "" {
		meta = fmt.Sprintf(`<meta name="ol-csrfToken" content="%s">`, html.EscapeString(token))
	}
	return `<!DOCTYPE html>
<html><head><title>Project - Overleaf</title>` + meta + `</head>
<body><div id="ide-root"></div></body></html>`
}
