/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

//go:build !((linux && cgo) || windows || darwin)

package device

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/codec"
)

// ErrUnavailable is returned on builds without audio output support.
var ErrUnavailable = errors.New("audio output is not supported on this build")

// Speaker is unavailable on this platform or without cgo.
type Speaker struct{}

// NewSpeaker always fails on this build.
func NewSpeaker(zerolog.Logger) (*Speaker, error) {
	return nil, ErrUnavailable
}

func (s *Speaker) Pace(context.Context, []byte, codec.Format) error {
	return ErrUnavailable
}

func (s *Speaker) Close() error {
	return nil
}
