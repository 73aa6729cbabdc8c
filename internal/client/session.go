// Package client talks to an Overleaf instance on behalf of a logged-in user.
package client

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	cookieName       = "overleaf.sid"
	csrfHeader       = "X-CSRF-Token"
	DefaultTimeout   = 5 * time.Minute
	defaultUserAgent = "olpull"
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Session carries the base URL and the headers sent with every request.
// The CSRF token is attached once, after FetchCSRFToken.
type Session struct {
	BaseURL string

	header http.Header
	doer   Doer
}

type Option func(*sessionOptions)

type sessionOptions struct {
	doer      Doer
	timeout   time.Duration
	userAgent string
}

// WithDoer replaces the HTTP transport, mostly for tests.
func WithDoer(d Doer) Option {
	return func(o *sessionOptions) { o.doer = d }
}

// WithTimeout bounds every request made by the session. Ignored when
// WithDoer is used.
func WithTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(o *sessionOptions) { o.userAgent = ua }
}

// NewSession builds a session for baseURL authenticated with cookie.
// It does not touch the network.
func NewSession(baseURL, cookie string, opts ...Option) *Session {
	o := sessionOptions{
		timeout:   DefaultTimeout,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.doer == nil {
		o.doer = GetHTTPClient(o.timeout)
	}

	header := make(http.Header)
	header.Set("Cookie", CookieHeader(cookie))
	if o.userAgent != "" {
		header.Set("User-Agent", o.userAgent)
	}

	return &Session{
		BaseURL: NormalizeBaseURL(baseURL),
		header:  header,
		doer:    o.doer,
	}
}

// CookieHeader returns the Cookie header value for a session cookie given
// either as a bare value or as a full "overleaf.sid=..." pair.
func CookieHeader(cookie string) string {
	cookie = strings.TrimSpace(cookie)
	if strings.HasPrefix(strings.ToLower(cookie), cookieName+"=") {
		return cookie
	}
	return cookieName + "=" + cookie
}

// NormalizeBaseURL strips trailing slashes so paths can be appended directly.
func NormalizeBaseURL(u string) string {
	return strings.TrimRight(u, "/")
}

// SetCSRFToken attaches the token to all later requests.
func (s *Session) SetCSRFToken(token string) {
	s.header.Set(csrfHeader, token)
}

// Header returns a copy of the headers the session sends.
func (s *Session) Header() http.Header {
	return s.header.Clone()
}

// GetHTTPClient returns an HTTP client that respects proxy environment variables
// (HTTP_PROXY, HTTPS_PROXY, NO_PROXY)
func GetHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		},
	}
}

func (s *Session) projectURL(projectID string, suffix ...string) string {
	return s.BaseURL + "/project/" + projectID + strings.Join(suffix, "")
}

// get issues an authenticated GET. On a non-2xx status the body is drained
// and a *RemoteError returned.
func (s *Session) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header = s.header.Clone()

	resp, err := s.doer.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &RemoteError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp, nil
}
