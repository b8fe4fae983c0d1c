// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "mitabo-test", ExporterType: "grpc"})
	require.NoError(t, err)
	assert.False(t, provider.Enabled())
	assert.NoError(t, provider.Shutdown(context.Background()))

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "mitabo-test", ExporterType: "invalid"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: invalid (supported: grpc, http)", err.Error())
}

func TestNewProvider_HTTPExporter(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "mitabo-test",
		ExporterType: "http",
		Endpoint:     "127.0.0.1:4318",
		SamplingRate: 1.0,
	})
	require.NoError(t, err)
	assert.True(t, provider.Enabled())

	_, span := Tracer("test").Start(context.Background(), "recorded")
	assert.True(t, span.IsRecording())
	span.End()

	// The collector is absent; only the bounded shutdown matters here.
	_ = provider.Shutdown(context.Background())
}

func TestNewSampler(t *testing.T) {
	for _, tc := range []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0.0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	} {
		assert.Equal(t, tc.want, newSampler(tc.rate).Description(), fmt.Sprint(tc.rate))
	}
}

func TestSourceAttributes_OmitsUnknown(t *testing.T) {
	assert.Empty(t, SourceAttributes(0, 0, 0, ""))
	assert.Len(t, SourceAttributes(1920, 1080, 12.5, "mov"), 4)
}

func TestPackagingAttributes(t *testing.T) {
	attrs := PackagingAttributes("/hls/asset_1", 2, 24, 4)
	require.Len(t, attrs, 4)
	assert.Equal(t, PackagingOutputDirKey, string(attrs[0].Key))
	assert.Equal(t, int64(2), attrs[1].Value.AsInt64())
}
