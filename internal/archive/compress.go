package archive

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
)

// Pack writes the tree under dir to w as a zip. Every entry is placed below
// root/ when root is not empty, the way the download endpoint lays out a
// project. Directories get their own entries.
func Pack(w io.Writer, dir, root string) error {
	zipWriter := zip.NewWriter(w)

	if root != "" {
		if _, err := zipWriter.Create(root + "/"); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := zipPath(zipWriter, filepath.Join(dir, entry.Name()), root); err != nil {
			return err
		}
	}

	return zipWriter.Close()
}

// zipPath compresses a single file or directory into the zip writer.
// It keeps the directory structure when adding files from a directory.
func zipPath(zipWriter *zip.Writer, p, base string) error {
	info, err := os.Stat(p)
	if err != nil {
		return err
	}
	name := path.Join(base, info.Name())

	if info.IsDir() {
		if _, err := zipWriter.Create(name + "/"); err != nil {
			return err
		}
		files, err := os.ReadDir(p)
		if err != nil {
			return err
		}
		for _, file := range files {
			if err := zipPath(zipWriter, filepath.Join(p, file.Name()), name); err != nil {
				return err
			}
		}
		return nil
	}

	file, err := os.Open(p)
	if err != nil {
		return err
	}
	defer file.Close()

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
