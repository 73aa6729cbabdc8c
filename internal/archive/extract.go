// Package archive unpacks project zips and builds them for tests.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type Option func(*options)

type options struct {
	flatten bool
}

// WithoutFlatten keeps a single top-level directory instead of stripping it.
func WithoutFlatten() Option {
	return func(o *options) { o.flatten = false }
}

// WithFlatten sets whether a single top-level directory is stripped.
func WithFlatten(flatten bool) Option {
	return func(o *options) { o.flatten = flatten }
}

// Result describes what Extract wrote.
type Result struct {
	// Dest is the absolute destination directory.
	Dest string
	// Root is the stripped common root, empty when nothing was stripped.
	Root  string
	Files int
	Dirs  int
}

// Extract unpacks the zip in data into dest, creating dest if needed.
// Unless WithoutFlatten is given, a single top-level directory shared by
// every entry is stripped so its contents land directly in dest. Existing
// files are overwritten.
func Extract(data []byte, dest string, opts ...Option) (Result, error) {
	o := options{flatten: true}
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		return Result{}, &FilesystemError{Op: "resolve", Path: dest, Err: err}
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return Result{}, &FilesystemError{Op: "mkdir", Path: abs, Err: err}
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	// Names are checked entry by entry in safeJoin.
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return Result{}, &FormatError{Err: err}
	}

	res := Result{Dest: abs}
	prefix := ""
	if o.flatten {
		names := make([]string, len(reader.File))
		for i, f := range reader.File {
			names[i] = f.Name
		}
		if root, ok := CommonRoot(names); ok {
			res.Root = root
			prefix = root + "/"
		}
	}

	for _, file := range reader.File {
		name := file.Name
		if prefix != "" {
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			name = name[len(prefix):]
		}
		name = strings.TrimRight(name, "/")
		if name == "" {
			// the root marker itself
			continue
		}

		targetPath, err := safeJoin(abs, name)
		if err != nil {
			return res, err
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return res, &FilesystemError{Op: "mkdir", Path: targetPath, Err: err}
			}
			res.Dirs++
			continue
		}

		if err := writeFile(file, targetPath); err != nil {
			return res, err
		}
		res.Files++
	}

	return res, nil
}

// CommonRoot returns the first path segment shared by every non-empty entry
// name, provided at least one entry lies below it.
func CommonRoot(names []string) (string, bool) {
	var root string
	for _, name := range names {
		first := firstSegment(name)
		if first == "" {
			continue
		}
		if root == "" {
			root = first
		} else if first != root {
			return "", false
		}
	}
	if root == "" {
		return "", false
	}

	prefix := root + "/"
	for _, name := range names {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return root, true
		}
	}
	return "", false
}

func firstSegment(name string) string {
	for _, part := range strings.Split(name, "/") {
		if part != "" {
			return part
		}
	}
	return ""
}

// safeJoin resolves the slash-separated entry name under dest and rejects
// names that would land outside it.
func safeJoin(dest, name string) (string, error) {
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", &FilesystemError{Op: "extract", Path: name, Err: ErrUnsafePath}
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &FilesystemError{Op: "extract", Path: name, Err: ErrUnsafePath}
	}
	return target, nil
}

func writeFile(file *zip.File, targetPath string) error {
	// Ensure the directory exists for the file
	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return &FilesystemError{Op: "mkdir", Path: filepath.Dir(targetPath), Err: err}
	}

	fileReader, err := file.Open()
	if err != nil {
		return &FormatError{Err: err}
	}
	defer fileReader.Close()

	targetFile, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &FilesystemError{Op: "create", Path: targetPath, Err: err}
	}

	_, err = io.Copy(targetFile, entryReader{fileReader})
	cerr := targetFile.Close()

	if err != nil {
		var readErr entryReadError
		if errors.As(err, &readErr) {
			return &FormatError{Err: readErr.err}
		}
		return &FilesystemError{Op: "write", Path: targetPath, Err: err}
	}
	if cerr != nil {
		return &FilesystemError{Op: "close", Path: targetPath, Err: cerr}
	}
	return nil
}

// entryReader marks errors coming from the compressed side (bad checksum,
// truncated deflate stream) so they are not reported as write failures.
type entryReader struct {
	r io.Reader
}

type entryReadError struct {
	err error
}

func (e entryReadError) Error() string { return e.err.Error() }

func (e entryReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF {
		err = entryReadError{err}
	}
	return n, err
}
