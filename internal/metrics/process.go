// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProcessStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrogate_process_start_total",
		Help: "Process start attempts by category and outcome",
	}, []string{"category", "outcome"}) // outcome=started|conflict|not_found|closed

	ProcessEndsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrogate_process_end_total",
		Help: "Process runs that reached a terminal status",
	}, []string{"category", "status"})

	processesRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "astrogate_processes_running",
		Help: "Processes currently running by category",
	}, []string{"category"})

	processDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "astrogate_process_duration_seconds",
		Help:    "Wall time of a process run",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"category", "status"})

	processesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "astrogate_processes_registered",
		Help: "Processes currently held by the registry",
	})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "astrogate_subprocess_terminate_total",
		Help: "Signals sent to external tool process groups",
	}, []string{"signal", "result"}) // result=sent|error
)

// RecordProcessStart counts a Start call and, when it launched a run,
// marks the category as running.
func RecordProcessStart(category, outcome string) {
	ProcessStartsTotal.WithLabelValues(category, outcome).Inc()
	if outcome == "started" {
		processesRunning.WithLabelValues(category).Inc()
	}
}

// RecordProcessEnd records a finished run.
func RecordProcessEnd(category, status string, d time.Duration) {
	ProcessEndsTotal.WithLabelValues(category, status).Inc()
	processesRunning.WithLabelValues(category).Dec()
	processDuration.WithLabelValues(category, status).Observe(d.Seconds())
}

// SetProcessesRegistered publishes the registry size.
func SetProcessesRegistered(n int) {
	processesRegistered.Set(float64(n))
}

// IncProcTerminate counts a signal sent to an external tool.
func IncProcTerminate(signal string, err error) {
	result := "sent"
	if err != nil {
		result = "error"
	}
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}
