package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"
)

const previewLen = 200

// zipMagic is the prefix of a zip local file header.
var zipMagic = []byte("PK")

// FetchArchive downloads the project as a zip. The session's headers,
// including the CSRF token if one was set, are sent as they are.
func (s *Session) FetchArchive(ctx context.Context, projectID string) ([]byte, error) {
	url := s.projectURL(projectID, "/download/zip")
	resp, err := s.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	if err := checkArchive(url, resp.Header.Get("Content-Type"), data); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Str("url", url).Int("bytes", len(data)).Msg("Downloaded archive")
	return data, nil
}

// checkArchive rejects bodies that do not start with the zip signature.
func checkArchive(url, contentType string, data []byte) error {
	if bytes.HasPrefix(data, zipMagic) {
		return nil
	}
	return &FormatError{
		URL:         url,
		ContentType: contentType,
		Preview:     preview(data),
		Title:       pageTitle(contentType, data),
	}
}

// preview decodes up to previewLen bytes, replacing invalid UTF-8.
func preview(data []byte) string {
	if len(data) > previewLen {
		data = data[:previewLen]
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return string(out)
}

// pageTitle returns the <title> of an HTML body, or "" when there is none.
func pageTitle(contentType string, data []byte) string {
	if !strings.Contains(strings.ToLower(contentType), "html") &&
		!bytes.Contains(bytes.ToLower(data[:min(len(data), 512)]), []byte("<html")) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
