/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media stores WAV files and loads them for the playback clock.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode"
)

var (
	// ErrInvalidName is returned for names that are empty, hidden, not .wav,
	// or try to leave the media root.
	ErrInvalidName = errors.New("media: invalid file name")
	// ErrNotFound is returned when a stored file does not exist.
	ErrNotFound = errors.New("media: file not found")
	// ErrTooLarge is returned when a file exceeds the library's size limit.
	ErrTooLarge = errors.New("media: file too large")
)

// Storage abstracts where media files live. Names are flat base names as
// returned by SanitizeName.
type Storage interface {
	Store(ctx context.Context, name string, r io.Reader) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	CheckAccess(ctx context.Context) error
}

// SanitizeName reduces a client-supplied file name to a safe base name.
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	if name == "" || name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character", ErrInvalidName)
		}
	}
	if !strings.EqualFold(path.Ext(name), ".wav") || len(name) == len(".wav") {
		return "", fmt.Errorf("%w: %q is not a .wav file", ErrInvalidName, name)
	}
	return name, nil
}
