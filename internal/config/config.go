/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Pacer selection.
const (
	PacerClock   = "clock"
	PacerSpeaker = "speaker"
)

// Event bus selection.
const (
	EventBusMemory = "memory"
	EventBusRedis  = "redis"
	EventBusNATS   = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment     string
	LogLevel        string
	LogBufferSize   int
	HTTPBind        string
	HTTPPort        int
	MetricsBind     string
	MediaRoot       string
	MaxUploadSizeMB int

	// Playback engine
	BlockSize        int
	IdleDelay        time.Duration
	SinkBuffer       int
	MaxCatchUpBytes  int
	Pacer            string
	FallbackPlaylist string

	// Play history
	HistoryEnabled bool
	DBBackend      DatabaseBackend
	DBDSN          string

	// Event fanout across instances
	EventBus      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	InstanceID    string

	// S3 media storage; used when S3Bucket is set
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnvAny([]string{"WAVECAST_ENV"}, "development"),
		LogLevel:        getEnvAny([]string{"WAVECAST_LOG_LEVEL"}, ""),
		LogBufferSize:   getEnvIntAny([]string{"WAVECAST_LOG_BUFFER_SIZE"}, 500),
		HTTPBind:        getEnvAny([]string{"WAVECAST_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:        getEnvIntAny([]string{"WAVECAST_HTTP_PORT", "PORT"}, 8080),
		MetricsBind:     getEnvAny([]string{"WAVECAST_METRICS_BIND"}, "127.0.0.1:9000"),
		MediaRoot:       getEnvAny([]string{"WAVECAST_MEDIA_ROOT"}, "./media"),
		MaxUploadSizeMB: getEnvIntAny([]string{"WAVECAST_MAX_UPLOAD_SIZE_MB"}, 0),

		BlockSize:        getEnvIntAny([]string{"WAVECAST_BLOCK_SIZE"}, 4096),
		IdleDelay:        time.Duration(getEnvIntAny([]string{"WAVECAST_IDLE_DELAY_MS"}, 100)) * time.Millisecond,
		SinkBuffer:       getEnvIntAny([]string{"WAVECAST_SINK_BUFFER"}, 256),
		MaxCatchUpBytes:  getEnvIntAny([]string{"WAVECAST_MAX_CATCHUP_BYTES"}, 64*1024),
		Pacer:            strings.ToLower(getEnvAny([]string{"WAVECAST_PACER"}, PacerClock)),
		FallbackPlaylist: getEnvAny([]string{"WAVECAST_FALLBACK_PLAYLIST"}, ""),

		HistoryEnabled: getEnvBoolAny([]string{"WAVECAST_HISTORY_ENABLED"}, true),
		DBBackend:      DatabaseBackend(getEnvAny([]string{"WAVECAST_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:          getEnvAny([]string{"WAVECAST_DB_DSN"}, ""),

		EventBus:      strings.ToLower(getEnvAny([]string{"WAVECAST_EVENT_BUS"}, EventBusMemory)),
		RedisAddr:     getEnvAny([]string{"WAVECAST_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"WAVECAST_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"WAVECAST_REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"WAVECAST_NATS_URL"}, "nats://localhost:4222"),
		InstanceID:    getEnvAny([]string{"WAVECAST_INSTANCE_ID"}, ""),

		S3AccessKeyID:     getEnvAny([]string{"WAVECAST_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"WAVECAST_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"WAVECAST_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"WAVECAST_S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"WAVECAST_S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"WAVECAST_S3_USE_PATH_STYLE"}, false),

		TracingEnabled:    getEnvBoolAny([]string{"WAVECAST_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"WAVECAST_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"WAVECAST_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}
	if cfg.DBDSN == "" {
		if cfg.HistoryEnabled && cfg.DBBackend != DatabaseSQLite {
			return nil, fmt.Errorf("WAVECAST_DB_DSN must be provided for the %s backend", cfg.DBBackend)
		}
		cfg.DBDSN = "wavecast.db"
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid http port %d", cfg.HTTPPort)
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("WAVECAST_BLOCK_SIZE must be positive, got %d", cfg.BlockSize)
	}
	if cfg.SinkBuffer <= 0 {
		return nil, fmt.Errorf("WAVECAST_SINK_BUFFER must be positive, got %d", cfg.SinkBuffer)
	}
	if cfg.MaxCatchUpBytes < 0 {
		return nil, fmt.Errorf("WAVECAST_MAX_CATCHUP_BYTES must not be negative")
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = 100 * time.Millisecond
	}

	switch cfg.Pacer {
	case PacerClock, PacerSpeaker:
	default:
		return nil, fmt.Errorf("unsupported pacer %q", cfg.Pacer)
	}
	switch cfg.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"PORT":          "use WAVECAST_HTTP_PORT",
		"MEDIA_DIR":     "use WAVECAST_MEDIA_ROOT",
		"ENVIRONMENT":   "use WAVECAST_ENV",
		"REDIS_ADDR":    "use WAVECAST_REDIS_ADDR",
		"NATS_URL":      "use WAVECAST_NATS_URL",
		"OTLP_ENDPOINT": "use WAVECAST_OTLP_ENDPOINT",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// Addr is the listen address of the public HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// MaxUploadSizeBytes returns the configured upload limit in bytes.
// A value of 0 means "not configured" and callers should use endpoint defaults.
func (c *Config) MaxUploadSizeBytes() int64 {
	if c == nil || c.MaxUploadSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
