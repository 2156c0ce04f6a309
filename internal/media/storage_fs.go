/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
)

// FilesystemStorage implements Storage using a local directory.
type FilesystemStorage struct {
	rootDir string
	logger  zerolog.Logger
}

// NewFilesystemStorage creates a filesystem-based storage backend.
func NewFilesystemStorage(rootDir string, logger zerolog.Logger) *FilesystemStorage {
	return &FilesystemStorage{rootDir: rootDir, logger: logger}
}

// Store writes r to name, replacing any existing file atomically.
func (s *FilesystemStorage) Store(_ context.Context, name string, r io.Reader) error {
	if err := os.MkdirAll(s.rootDir, 0o755); err != nil {
		return fmt.Errorf("create media root: %w", err)
	}

	tmp, err := os.CreateTemp(s.rootDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	fullPath := filepath.Join(s.rootDir, name)
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("move file into place: %w", err)
	}

	s.logger.Debug().Str("path", fullPath).Msg("filesystem storage: file stored")
	return nil
}

// Open opens name for reading.
func (s *FilesystemStorage) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.rootDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes name. Missing files are not an error.
func (s *FilesystemStorage) Delete(_ context.Context, name string) error {
	fullPath := filepath.Join(s.rootDir, name)
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	s.logger.Debug().Str("path", fullPath).Msg("filesystem storage: file deleted")
	return nil
}

// List returns the .wav files in the media root, sorted.
func (s *FilesystemStorage) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.rootDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read media root: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, err := SanitizeName(e.Name()); err == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// CheckAccess verifies the storage directory exists and is accessible.
func (s *FilesystemStorage) CheckAccess(_ context.Context) error {
	info, err := os.Stat(s.rootDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("media root directory does not exist: %s", s.rootDir)
		}
		return fmt.Errorf("cannot access media root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", s.rootDir)
	}
	return nil
}
