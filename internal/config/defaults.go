// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

const (
	DefaultListenAddr         = ":8080"
	DefaultFFmpegTimeout      = 30 * time.Minute
	DefaultStallTimeout       = 2 * time.Minute
	DefaultKillGrace          = 5 * time.Second
	DefaultFrameRate          = 24.0
	DefaultCacheTTL           = 30 * time.Second
	DefaultUploadMaxBytes     = 2 << 30
	DefaultUploadRatePerMin   = 30
	DefaultIngestConcurrency  = 2
	DefaultTelemetryEndpoint  = "localhost:4317"
	DefaultTelemetrySampling  = 1.0
	defaultDataDir            = "data"
	defaultService            = "mitabo"
	defaultTelemetryTransport = "grpc"
)

// Defaults returns the configuration used when neither file nor environment
// say otherwise. Derived paths (HLS root, upload dir, database) stay empty
// until the loader resolves them against DataDir.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:    defaultDataDir,
		ListenAddr: DefaultListenAddr,
		LogService: defaultService,
		FFmpeg: FFmpegConfig{
			Bin:          "ffmpeg",
			FFprobeBin:   "ffprobe",
			Timeout:      DefaultFFmpegTimeout,
			StallTimeout: DefaultStallTimeout,
			KillGrace:    DefaultKillGrace,
			FrameRate:    DefaultFrameRate,
		},
		Storage: StorageConfig{Backend: StorageLocal},
		Cache:   CacheConfig{TTL: DefaultCacheTTL},
		Upload: UploadConfig{
			MaxBytes:           DefaultUploadMaxBytes,
			RateLimitPerMinute: DefaultUploadRatePerMin,
		},
		Ingest: IngestConfig{MaxConcurrent: DefaultIngestConcurrency},
		Telemetry: TelemetryConfig{
			Exporter:     defaultTelemetryTransport,
			Endpoint:     DefaultTelemetryEndpoint,
			SamplingRate: DefaultTelemetrySampling,
		},
	}
}
