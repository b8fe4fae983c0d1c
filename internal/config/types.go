// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the resolved runtime configuration. YAML keys mirror the
// struct tags; every key can be overridden by a MITABO_* environment variable.
type AppConfig struct {
	DataDir    string `yaml:"data_dir"`
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
	LogService string `yaml:"log_service"`

	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	HLS       HLSConfig       `yaml:"hls"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Upload    UploadConfig    `yaml:"upload"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// FFmpegConfig drives the packaging engine and its supervision.
type FFmpegConfig struct {
	Bin          string        `yaml:"bin"`
	FFprobeBin   string        `yaml:"ffprobe_bin"`
	Timeout      time.Duration `yaml:"timeout"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
	KillGrace    time.Duration `yaml:"kill_grace"`
	// FrameRate is assumed when the source frame rate cannot be probed.
	FrameRate float64 `yaml:"frame_rate"`
	// ProbeCacheTTL caches the capability check; zero re-checks every ingest.
	ProbeCacheTTL time.Duration `yaml:"probe_cache_ttl"`
}

// HLSConfig locates packaged output.
type HLSConfig struct {
	Root string `yaml:"root"`
}

// StorageConfig selects the blob backend for originals.
type StorageConfig struct {
	Backend         string `yaml:"backend"` // local | s3
	LocalDir        string `yaml:"local_dir"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Region        string `yaml:"s3_region"`
	S3Endpoint      string `yaml:"s3_endpoint"`
	S3PublicBaseURL string `yaml:"s3_public_base_url"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls the listing cache. An empty RedisAddr keeps it in memory.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
	// RateLimitPerMinute caps uploads per client IP; zero disables the limit.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type IngestConfig struct {
	// MaxConcurrent bounds simultaneous packaging jobs; zero means unbounded.
	MaxConcurrent int `yaml:"max_concurrent"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)
