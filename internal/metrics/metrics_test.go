// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mitabo/mitabo/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestPipelineMetricsExposed(t *testing.T) {
	metrics.RecordEngineProbe(true)
	metrics.RecordEngineProbe(false)
	metrics.IncIngest("packaged")
	metrics.ObservePackaging("ok", 3*time.Second)
	metrics.IncPackagingFailure("exit_nonzero")
	metrics.IncManifestRepair()
	metrics.IncProcTerminate("SIGTERM", "sent")

	out := scrape(t)
	for _, want := range []string{
		`mitabo_engine_probe_total{result="available"}`,
		`mitabo_engine_probe_total{result="unavailable"}`,
		`mitabo_ingest_total{outcome="packaged"}`,
		`mitabo_packaging_duration_seconds_count{outcome="ok"}`,
		`mitabo_packaging_failures_total{reason="exit_nonzero"}`,
		`mitabo_manifest_repairs_total`,
		`mitabo_proc_terminate_total{outcome="sent",signal="SIGTERM"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metric %s not exposed", want)
		}
	}
}

func TestStorageMetricsExposed(t *testing.T) {
	metrics.RecordBlobOp("local", "put", nil)
	metrics.RecordBlobOp("s3", "put", errors.New("boom"))
	metrics.RecordListingCache(true)
	metrics.RecordListingCache(false)
	metrics.IncFileDenied("hls", "path_escape")

	out := scrape(t)
	for _, want := range []string{
		`mitabo_blob_operations_total{backend="local",op="put",result="ok"}`,
		`mitabo_blob_operations_total{backend="s3",op="put",result="error"}`,
		`mitabo_listing_cache_total{result="hit"}`,
		`mitabo_file_requests_denied_total{reason="path_escape",root="hls"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metric %s not exposed", want)
		}
	}
}
