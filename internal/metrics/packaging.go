// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of the media pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineProbeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitabo_engine_probe_total",
		Help: "Transcoding engine capability probes by result",
	}, []string{"result"}) // available, unavailable

	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitabo_ingest_total",
		Help: "Finished ingestions by final outcome",
	}, []string{"outcome"}) // skipped_not_requested, skipped_no_engine, packaged, failed

	packagingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mitabo_packaging_duration_seconds",
		Help:    "Wall-clock duration of HLS packaging jobs",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
	}, []string{"outcome"})

	packagingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitabo_packaging_failures_total",
		Help: "Failed HLS packaging jobs by reason",
	}, []string{"reason"}) // exit_nonzero, timeout, stalled, input_unreadable, start_failed, other

	manifestRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mitabo_manifest_repairs_total",
		Help: "Top-level manifests synthesized because the engine omitted them",
	})

	packagingInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mitabo_packaging_in_flight",
		Help: "HLS packaging jobs currently running",
	})

	engineStallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mitabo_engine_stalls_total",
		Help: "Engine processes killed because progress stopped advancing",
	})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitabo_proc_terminate_total",
		Help: "Signals sent to engine process groups",
	}, []string{"signal", "outcome"})
)

// RecordEngineProbe counts one capability probe result.
func RecordEngineProbe(available bool) {
	result := "unavailable"
	if available {
		result = "available"
	}
	engineProbeTotal.WithLabelValues(result).Inc()
}

// IncIngest counts one finished ingestion.
func IncIngest(outcome string) { ingestTotal.WithLabelValues(outcome).Inc() }

// ObservePackaging records the duration of a packaging job.
func ObservePackaging(outcome string, d time.Duration) {
	packagingDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func IncPackagingFailure(reason string) { packagingFailures.WithLabelValues(reason).Inc() }
func IncManifestRepair()                { manifestRepairsTotal.Inc() }
func IncEngineStall()                   { engineStallsTotal.Inc() }
func PackagingStarted()                 { packagingInFlight.Inc() }
func PackagingFinished()                { packagingInFlight.Dec() }

// IncProcTerminate counts a signal delivery attempt to an engine process group.
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}
