/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/codec"
	"github.com/friendsincode/wavecast/internal/config"
	"github.com/friendsincode/wavecast/internal/playback"
	"github.com/friendsincode/wavecast/internal/telemetry"
)

// DefaultMaxFileSize bounds uploads and loads when no limit is configured.
const DefaultMaxFileSize int64 = 512 << 20

// Library resolves queue references to decoded tracks.
type Library struct {
	storage Storage
	maxSize int64
	logger  zerolog.Logger
}

// NewLibrary picks S3 when a bucket is configured, the media root otherwise.
func NewLibrary(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Library, error) {
	logger = logger.With().Str("component", "media").Logger()

	var storage Storage
	if cfg.S3Bucket != "" {
		if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
			logger.Warn().Msg("S3 credentials not configured, using the default AWS credential chain")
		}
		s3Storage, err := NewS3Storage(ctx, S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize S3 storage: %w", err)
		}
		storage = s3Storage
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("using S3 media storage")
	} else {
		storage = NewFilesystemStorage(cfg.MediaRoot, logger)
		logger.Info().Str("root", cfg.MediaRoot).Msg("using filesystem media storage")
	}

	return NewLibraryWithStorage(storage, cfg.MaxUploadSizeBytes(), logger), nil
}

// NewLibraryWithStorage wraps an existing backend. maxSize <= 0 uses
// DefaultMaxFileSize.
func NewLibraryWithStorage(storage Storage, maxSize int64, logger zerolog.Logger) *Library {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &Library{storage: storage, maxSize: maxSize, logger: logger}
}

// MaxSize is the largest file the library accepts.
func (l *Library) MaxSize() int64 {
	return l.maxSize
}

// Load opens and decodes ref. It implements playback.Loader.
func (l *Library) Load(ctx context.Context, ref string) (_ codec.Format, _ []byte, err error) {
	ctx, span := telemetry.StartSpan(ctx, "media.Load")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	name, err := SanitizeName(ref)
	if err != nil {
		return codec.Format{}, nil, err
	}

	start := time.Now()
	rc, err := l.storage.Open(ctx, name)
	if err != nil {
		return codec.Format{}, nil, err
	}
	defer rc.Close()

	raw, err := readLimited(rc, l.maxSize)
	if err != nil {
		return codec.Format{}, nil, fmt.Errorf("read %s: %w", name, err)
	}
	format, data, err := codec.Decode(bytes.NewReader(raw))
	if err != nil {
		return codec.Format{}, nil, fmt.Errorf("decode %s: %w", name, err)
	}

	telemetry.AddSpanAttributes(span, map[string]any{
		"track":  name,
		"format": format.String(),
		"bytes":  len(data),
	})
	l.logger.Debug().
		Str("track", name).
		Str("format", format.String()).
		Int("bytes", len(data)).
		Dur("took", time.Since(start)).
		Msg("track decoded")
	return format, data, nil
}

// Upload validates a WAV file and stores it under a sanitized name, which it
// returns.
func (l *Library) Upload(ctx context.Context, filename string, r io.Reader) (_ string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "media.Upload")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	name, err := SanitizeName(filename)
	if err != nil {
		return "", err
	}

	raw, err := readLimited(r, l.maxSize)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if _, _, err := codec.Decode(bytes.NewReader(raw)); err != nil {
		return "", err
	}
	if err := l.storage.Store(ctx, name, bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}

	l.logger.Info().Str("track", name).Int("bytes", len(raw)).Msg("upload stored")
	return name, nil
}

// List returns the available track names.
func (l *Library) List(ctx context.Context) ([]string, error) {
	return l.storage.List(ctx)
}

// Delete removes a stored track.
func (l *Library) Delete(ctx context.Context, ref string) error {
	name, err := SanitizeName(ref)
	if err != nil {
		return err
	}
	return l.storage.Delete(ctx, name)
}

// CheckAccess verifies the backend with a short timeout.
func (l *Library) CheckAccess(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return l.storage.CheckAccess(ctx)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, ErrTooLarge
	}
	return raw, nil
}

var _ playback.Loader = (*Library)(nil)
