// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	blobOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitabo_blob_operations_total",
		Help: "Original-file blob store operations",
	}, []string{"backend", "op", "result"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mitabo_upload_bytes_total",
		Help: "Bytes of original media accepted by the upload endpoint",
	})

	listingCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitabo_listing_cache_total",
		Help: "Video listing cache lookups",
	}, []string{"result"}) // hit, miss

	fileRequestsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mitabo_file_requests_denied_total",
		Help: "Static media/HLS file requests rejected by the file server",
	}, []string{"root", "reason"})
)

// RecordBlobOp counts a blob store operation.
func RecordBlobOp(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	blobOpsTotal.WithLabelValues(backend, op, result).Inc()
}

func AddUploadBytes(n int64) {
	if n > 0 {
		uploadBytesTotal.Add(float64(n))
	}
}

func RecordListingCache(hit bool) {
	if hit {
		listingCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	listingCacheTotal.WithLabelValues("miss").Inc()
}

func IncFileDenied(root, reason string) { fileRequestsDenied.WithLabelValues(root, reason).Inc() }
