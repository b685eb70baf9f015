// archive.go: Package extraction with wrapping-directory normalization
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveExtractor unpacks deployed packages in place.
//
// A package is an archive when its name ends in ".zip" (any case). Anything
// else, including directories, is returned unchanged so that raw units and
// already installed bundles flow through the same path.
type ArchiveExtractor struct {
	logger Logger
}

// NewArchiveExtractor creates an extractor. A nil logger is replaced by NoOpLogger.
func NewArchiveExtractor(logger any) *ArchiveExtractor {
	return &ArchiveExtractor{logger: NewLogger(logger)}
}

// IsArchive reports whether path names a recognized archive.
func IsArchive(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".zip")
}

// Extract unpacks path into its parent directory and returns that directory.
//
// When every entry shares one first path segment, that segment is stripped so
// "demo/lib/x.unit" lands at "<parent>/lib/x.unit". A single entry without a
// separator, or two distinct first segments, disables stripping. The archive
// is removed after a successful extraction. A failure part way leaves the
// files written so far.
func (e *ArchiveExtractor) Extract(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewSourceNotFoundError(path)
		}
		return "", NewSourceUnreadableError(path, err)
	}
	if info.IsDir() || !IsArchive(path) {
		if err := checkReadable(path); err != nil {
			return "", err
		}
		return path, nil
	}

	root := filepath.Dir(path)
	if err := e.unpack(path, root); err != nil {
		e.logger.Warn("Failed to extract archive", "archive", path, "error", err)
		return "", err
	}

	if err := os.Remove(path); err != nil {
		e.logger.Warn("Failed to remove extracted archive", "archive", path, "error", err)
	}
	return root, nil
}

func checkReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- caller supplied package location
	if err != nil {
		return NewSourceUnreadableError(path, err)
	}
	return f.Close()
}

func (e *ArchiveExtractor) unpack(archivePath, root string) (err error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return NewCorruptArchiveError(archivePath, err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil && err == nil {
			err = NewCorruptArchiveError(archivePath, closeErr)
		}
	}()

	names := make([]string, len(reader.File))
	for i, f := range reader.File {
		names[i] = strings.ReplaceAll(f.Name, `\`, "/")
	}
	strip := commonTopLevelDir(names)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return NewExtractWriteError(root, err)
	}

	for i, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := names[i]
		if strip {
			name = name[strings.Index(name, "/")+1:]
		}
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}

		target := filepath.Join(absRoot, filepath.FromSlash(name))
		rel, relErr := filepath.Rel(absRoot, target)
		if relErr != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return NewIllegalEntryPathError(archivePath, f.Name)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return NewExtractWriteError(target, err)
		}
		if err := writeZipEntry(f, target); err != nil {
			return err
		}
		e.logger.Debug("Extracted archive entry", "entry", f.Name, "target", target)
	}
	return nil
}

// commonTopLevelDir reports whether every name starts with the same first
// path segment. Any name without a separator disables stripping.
func commonTopLevelDir(names []string) bool {
	if len(names) == 0 {
		return false
	}
	first, _, _ := strings.Cut(names[0], "/")
	for _, name := range names {
		segment, _, found := strings.Cut(name, "/")
		if !found || segment != first {
			return false
		}
	}
	return true
}

func writeZipEntry(f *zip.File, target string) (err error) {
	src, err := f.Open()
	if err != nil {
		return NewCorruptArchiveError(f.Name, err)
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil && err == nil {
			err = NewCorruptArchiveError(f.Name, closeErr)
		}
	}()

	// #nosec G304 -- target was checked against the extraction root
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return NewExtractWriteError(target, err)
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = NewExtractWriteError(target, closeErr)
		}
	}()

	// #nosec G110 -- deploy packages come from operators, not end users
	if _, err := io.Copy(dst, src); err != nil {
		return NewCorruptArchiveError(f.Name, err)
	}
	return nil
}
