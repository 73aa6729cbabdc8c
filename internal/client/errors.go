package client

import (
	"fmt"
	"strings"
)

// RemoteError is returned when the server answers with a non-2xx status.
type RemoteError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *RemoteError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprint(e.StatusCode)
	}
	return fmt.Sprintf("GET %s: server returned status: %s", e.URL, status)
}

// FormatError is returned when the download endpoint answers with something
// that is not a zip archive, usually a login or error page.
type FormatError struct {
	URL         string
	ContentType string
	// Preview is the first previewLen bytes of the body, decoded as text.
	Preview string
	// Title is the <title> of the page, if the body was HTML.
	Title string
}

func (e *FormatError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "server did not return a zip file (got Content-Type: %s)", e.ContentType)
	if e.Title != "" {
		fmt.Fprintf(&b, ", page title: %q", e.Title)
	}
	fmt.Fprintf(&b, ". First bytes: %q...", e.Preview)
	return b.String()
}
