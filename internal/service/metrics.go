package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invariantViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_invariant_violations_total",
			Help: "Denormalized counter mismatches found by reconciliation",
		},
		[]string{"collection", "field"},
	)

	invariantRepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_invariant_repairs_total",
			Help: "Denormalized counters rewritten by reconciliation",
		},
		[]string{"collection", "field"},
	)

	purgedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_purged_records_total",
			Help: "Records hard-removed after every participant deleted them",
		},
		[]string{"collection"},
	)
)
