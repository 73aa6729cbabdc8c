package archive

import (
	"errors"
	"fmt"
)

// ErrUnsafePath is wrapped by a FilesystemError when an entry would be
// written outside the destination directory.
var ErrUnsafePath = errors.New("entry escapes destination directory")

// FormatError reports bytes that are not a readable zip container.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return "archive: not a valid zip file: " + e.Err.Error()
}

func (e *FormatError) Unwrap() error { return e.Err }

// FilesystemError reports a failure to create or write something under the
// destination directory.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("archive: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
