package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLevelSelection(t *testing.T) {
	cases := []struct {
		env   string
		level string
		want  zerolog.Level
	}{
		{"development", "", zerolog.DebugLevel},
		{"production", "", zerolog.InfoLevel},
		{"production", "warn", zerolog.WarnLevel},
		{"development", "ERROR", zerolog.ErrorLevel},
		{"production", "bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		t.Run(tc.env+"/"+tc.level, func(t *testing.T) {
			logger := Setup(tc.env, tc.level)
			if got := logger.GetLevel(); got != tc.want {
				t.Fatalf("level = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSetupWithWriterCapturesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", "", &buf)
	logger.Info().Str("component", "test").Msg("hello")

	if !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Fatalf("capture writer did not receive JSON line: %q", buf.String())
	}
}
