// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"

	"github.com/mitabo/mitabo/internal/validate"
)

// Validate validates a AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("ListenAddr", cfg.ListenAddr)
	v.Directory("DataDir", cfg.DataDir, false)
	v.Directory("HLS.Root", cfg.HLS.Root, false)

	if cfg.LogLevel != "" {
		v.OneOf("LogLevel", strings.ToLower(cfg.LogLevel),
			[]string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"})
	}

	v.NotEmpty("FFmpeg.Bin", cfg.FFmpeg.Bin)
	v.NotEmpty("FFmpeg.FFprobeBin", cfg.FFmpeg.FFprobeBin)
	if cfg.FFmpeg.Timeout <= 0 {
		v.AddError("FFmpeg.Timeout", "must be positive", cfg.FFmpeg.Timeout)
	}
	if cfg.FFmpeg.StallTimeout < 0 {
		v.AddError("FFmpeg.StallTimeout", "cannot be negative", cfg.FFmpeg.StallTimeout)
	}
	if cfg.FFmpeg.KillGrace < 0 {
		v.AddError("FFmpeg.KillGrace", "cannot be negative", cfg.FFmpeg.KillGrace)
	}
	if cfg.FFmpeg.ProbeCacheTTL < 0 {
		v.AddError("FFmpeg.ProbeCacheTTL", "cannot be negative", cfg.FFmpeg.ProbeCacheTTL)
	}
	v.FloatRange("FFmpeg.FrameRate", cfg.FFmpeg.FrameRate, 1, 240)

	v.OneOf("Storage.Backend", cfg.Storage.Backend, []string{StorageLocal, StorageS3})
	switch cfg.Storage.Backend {
	case StorageLocal:
		v.Directory("Storage.LocalDir", cfg.Storage.LocalDir, false)
	case StorageS3:
		v.NotEmpty("Storage.S3Bucket", cfg.Storage.S3Bucket)
		v.NotEmpty("Storage.S3Region", cfg.Storage.S3Region)
		if cfg.Storage.S3Endpoint != "" {
			v.URL("Storage.S3Endpoint", cfg.Storage.S3Endpoint, []string{"http", "https"})
		}
		if cfg.Storage.S3PublicBaseURL != "" {
			v.URL("Storage.S3PublicBaseURL", cfg.Storage.S3PublicBaseURL, []string{"http", "https"})
		}
	}

	v.NotEmpty("Database.Path", cfg.Database.Path)

	v.Range("Cache.RedisDB", cfg.Cache.RedisDB, 0, 15)
	if cfg.Cache.TTL < 0 {
		v.AddError("Cache.TTL", "cannot be negative", cfg.Cache.TTL)
	}

	if cfg.Upload.MaxBytes <= 0 {
		v.AddError("Upload.MaxBytes", "must be positive", cfg.Upload.MaxBytes)
	}
	v.NonNegative("Upload.RateLimitPerMinute", cfg.Upload.RateLimitPerMinute)
	v.Range("Ingest.MaxConcurrent", cfg.Ingest.MaxConcurrent, 0, 64)

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
	}
	v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)

	return v.Err()
}
