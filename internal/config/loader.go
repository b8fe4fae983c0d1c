// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MITABO_"

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath skips the file layer.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:      configPath,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, current string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, current)
}

func (l *Loader) envBool(key string, current bool) bool {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, current)
}

func (l *Loader) envInt(key string, current int) int {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, current)
}

func (l *Loader) envInt64(key string, current int64) int64 {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, current)
}

func (l *Loader) envDuration(key string, current time.Duration) time.Duration {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, current)
}

func (l *Loader) envFloat(key string, current float64) float64 {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, current)
}

// Load loads configuration with precedence: ENV > File > Defaults,
// then resolves derived paths and validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if err := resolvePaths(&cfg); err != nil {
		return cfg, err
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes the YAML file strictly on top of the defaults in cfg.
// Keys absent from the file keep their current values.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.ListenAddr = l.envString("LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)

	cfg.FFmpeg.Bin = l.envString("FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.FFprobeBin = l.envString("FFPROBE_BIN", cfg.FFmpeg.FFprobeBin)
	cfg.FFmpeg.Timeout = l.envDuration("FFMPEG_TIMEOUT", cfg.FFmpeg.Timeout)
	cfg.FFmpeg.StallTimeout = l.envDuration("FFMPEG_STALL_TIMEOUT", cfg.FFmpeg.StallTimeout)
	cfg.FFmpeg.KillGrace = l.envDuration("FFMPEG_KILL_GRACE", cfg.FFmpeg.KillGrace)
	cfg.FFmpeg.FrameRate = l.envFloat("FFMPEG_FRAME_RATE", cfg.FFmpeg.FrameRate)
	cfg.FFmpeg.ProbeCacheTTL = l.envDuration("FFMPEG_PROBE_CACHE_TTL", cfg.FFmpeg.ProbeCacheTTL)

	cfg.HLS.Root = l.envString("HLS_ROOT", cfg.HLS.Root)

	cfg.Storage.Backend = l.envString("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.LocalDir = l.envString("STORAGE_LOCAL_DIR", cfg.Storage.LocalDir)
	cfg.Storage.S3Bucket = l.envString("S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Region = l.envString("S3_REGION", cfg.Storage.S3Region)
	cfg.Storage.S3Endpoint = l.envString("S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3PublicBaseURL = l.envString("S3_PUBLIC_BASE_URL", cfg.Storage.S3PublicBaseURL)

	cfg.Database.Path = l.envString("DATABASE_PATH", cfg.Database.Path)

	cfg.Cache.RedisAddr = l.envString("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = l.envString("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = l.envInt("REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.TTL = l.envDuration("CACHE_TTL", cfg.Cache.TTL)

	cfg.Upload.MaxBytes = l.envInt64("UPLOAD_MAX_BYTES", cfg.Upload.MaxBytes)
	cfg.Upload.RateLimitPerMinute = l.envInt("UPLOAD_RATE_LIMIT_PER_MINUTE", cfg.Upload.RateLimitPerMinute)

	cfg.Ingest.MaxConcurrent = l.envInt("INGEST_MAX_CONCURRENT", cfg.Ingest.MaxConcurrent)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// resolvePaths makes DataDir absolute and derives the unset storage paths from it.
func resolvePaths(cfg *AppConfig) error {
	abs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data_dir: %w", err)
	}
	cfg.DataDir = abs

	if cfg.HLS.Root == "" {
		cfg.HLS.Root = filepath.Join(abs, "hls")
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = filepath.Join(abs, "uploads")
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(abs, "mitabo.db")
	}
	return nil
}
