// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by ingest and API spans.
const (
	AssetIDKey = "asset.id"

	IngestRequestedKey = "ingest.package_requested"
	IngestStateKey     = "ingest.state"
	IngestNoticeKey    = "ingest.notice"

	PackagingRenditionsKey = "packaging.renditions"
	PackagingFrameRateKey  = "packaging.frame_rate"
	PackagingSegmentKey    = "packaging.segment_seconds"
	PackagingExitCodeKey   = "packaging.exit_code"
	PackagingOutputDirKey  = "packaging.output_dir"

	SourceWidthKey     = "source.width"
	SourceHeightKey    = "source.height"
	SourceDurationKey  = "source.duration_s"
	SourceContainerKey = "source.container"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// IngestAttributes describes the start of an ingestion.
func IngestAttributes(assetID string, packageRequested bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AssetIDKey, assetID),
		attribute.Bool(IngestRequestedKey, packageRequested),
	}
}

// PackagingAttributes describes a packaging job.
func PackagingAttributes(outputDir string, renditions int, frameRate float64, segmentSeconds int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PackagingOutputDirKey, outputDir),
		attribute.Int(PackagingRenditionsKey, renditions),
		attribute.Float64(PackagingFrameRateKey, frameRate),
		attribute.Int(PackagingSegmentKey, segmentSeconds),
	}
}

// SourceAttributes describes the probed input. Unknown values are omitted.
func SourceAttributes(width, height int, durationSeconds float64, container string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if width > 0 && height > 0 {
		attrs = append(attrs, attribute.Int(SourceWidthKey, width), attribute.Int(SourceHeightKey, height))
	}
	if durationSeconds > 0 {
		attrs = append(attrs, attribute.Float64(SourceDurationKey, durationSeconds))
	}
	if container != "" {
		attrs = append(attrs, attribute.String(SourceContainerKey, container))
	}
	return attrs
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
