package client

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/rs/zerolog"
)

var csrfMetaRe = regexp.MustCompile(`<meta name="ol-csrfToken" content="([^"]*)"`)

// FetchCSRFToken loads the project page and returns the token from its
// ol-csrfToken meta tag. A page without the tag is not an error: found is
// false and the download is attempted without the header.
func (s *Session) FetchCSRFToken(ctx context.Context, projectID string) (token string, found bool, err error) {
	url := s.projectURL(projectID)
	resp, err := s.get(ctx, url)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", url, err)
	}

	token, found = ExtractCSRFToken(body)
	zerolog.Ctx(ctx).Debug().Str("url", url).Bool("found", found).Msg("Fetched project page")
	return token, found, nil
}

// ExtractCSRFToken finds the ol-csrfToken meta tag in page.
func ExtractCSRFToken(page []byte) (string, bool) {
	m := csrfMetaRe.FindSubmatch(page)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}
