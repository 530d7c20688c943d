package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	optimizerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paretodesk",
		Name:      "optimizer_runs_total",
		Help:      "Optimizer runs by source (optimize, demo) and outcome.",
	}, []string{"source", "outcome"})

	optimizerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "paretodesk",
		Name:      "optimizer_run_duration_seconds",
		Help:      "Latency of optimizer service calls.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"source"})

	catalogDesigns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "paretodesk",
		Name:      "catalog_designs",
		Help:      "Designs in the active catalog.",
	})

	selectionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paretodesk",
		Name:      "selection_events_total",
		Help:      "Selection events by operation and whether they applied.",
	}, []string{"operation", "applied"})

	advisorQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paretodesk",
		Name:      "advisor_queries_total",
		Help:      "Advisor queries by recommended material, or \"invalid\".",
	}, []string{"material"})
)
