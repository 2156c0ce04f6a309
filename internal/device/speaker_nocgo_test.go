//go:build !((linux && cgo) || windows || darwin)

package device

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/wavecast/internal/codec"
)

func TestSpeakerUnavailableWithoutBackend(t *testing.T) {
	s, err := NewSpeaker(zerolog.Nop())
	if !errors.Is(err, ErrUnavailable) || s != nil {
		t.Fatalf("NewSpeaker = %v, %v", s, err)
	}
	var fallback Speaker
	if err := fallback.Pace(context.Background(), nil, codec.Format{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Pace = %v", err)
	}
	if err := fallback.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
}
