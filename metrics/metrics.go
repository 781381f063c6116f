package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RulesImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulebase_rules_imported_total",
			Help: "Total number of imported documents by outcome",
		},
		[]string{"status"},
	)

	RulesAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulebase_rules_added_total",
			Help: "Total number of rule add attempts by result",
		},
		[]string{"result"},
	)

	ConflictsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulebase_conflicts_detected_total",
			Help: "Total number of rule conflicts detected",
		},
		[]string{"type"},
	)

	SearchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rulebase_searches_total",
			Help: "Total number of rule searches",
		},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rulebase_search_duration_seconds",
			Help:    "Time taken to rank search results",
			Buckets: prometheus.DefBuckets,
		},
	)

	IndexRebuilds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rulebase_index_rebuilds_total",
			Help: "Total number of index generations built",
		},
	)

	ActiveRules = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rulebase_active_rules",
			Help: "Number of rules in the current index generation",
		},
	)

	ValidationToolRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rulebase_validation_tool_runs_total",
			Help: "Total number of external validation tool runs by outcome",
		},
		[]string{"tool", "status"},
	)

	ImportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rulebase_import_file_duration_seconds",
			Help:    "Time taken to parse a single imported document",
			Buckets: prometheus.DefBuckets,
		},
	)
)
