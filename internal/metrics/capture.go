// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CaptureArtifactTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrogate_capture_artifact_total",
		Help: "Derived artifact requests by kind and result",
	}, []string{"kind", "result"}) // kind=analysis|platesolve result=computed|cached|not_ready|error

	CaptureOpenRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "astrogate_capture_open_retries_total",
		Help: "Transient artifact open failures that were retried",
	})

	capturesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "astrogate_captures_active",
		Help: "Captures currently held by the mediator",
	})
)

// RecordArtifact counts a derived artifact request.
func RecordArtifact(kind, result string) {
	CaptureArtifactTotal.WithLabelValues(kind, result).Inc()
}

// IncOpenRetry counts one retried artifact open.
func IncOpenRetry() {
	CaptureOpenRetriesTotal.Inc()
}

// SetCapturesActive publishes the mediator size.
func SetCapturesActive(n int) {
	capturesActive.Set(float64(n))
}
