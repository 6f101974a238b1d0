// Package metrics registers the Prometheus collectors of the progress engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnswersSubmitted counts graded answers by status.
	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mps",
		Name:      "answers_submitted_total",
		Help:      "Answers submitted, by status.",
	}, []string{"status"})

	// XPAwarded observes the dXP of each answer.
	XPAwarded = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mps",
		Name:      "xp_delta",
		Help:      "Distribution of XP deltas per answer.",
		Buckets:   []float64{-1, -0.5, 0, 0.1, 0.5, 1, 2, 3, 5, 10},
	})

	// BackendFailures counts failed backend calls by operation.
	BackendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mps",
		Name:      "backend_failures_total",
		Help:      "Failed backend calls, by operation.",
	}, []string{"op"})

	// RejectedSubmissions counts submissions refused while another was running.
	RejectedSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mps",
		Name:      "rejected_submissions_total",
		Help:      "Answer submissions refused because one was already in progress.",
	})

	// ActiveSessions is 1 while a session context is loaded.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mps",
		Name:      "active_sessions",
		Help:      "Loaded session contexts.",
	})
)
