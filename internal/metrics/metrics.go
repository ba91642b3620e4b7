// Package metrics holds the Prometheus collectors omem exports on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "omem"

var (
	// registrationsTotal counts registration attempts by outcome.
	registrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "total",
			Help:      "Registrations by result (created, duplicate, exhausted, error)",
		},
		[]string{"result"},
	)

	// registrationCollisionsTotal counts short id or token collisions that forced a retry.
	registrationCollisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "collisions_total",
			Help:      "Generated id collisions that consumed a registration attempt",
		},
	)

	// capabilitiesIssuedTotal counts signed URLs handed out.
	capabilitiesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capability",
			Name:      "issued_total",
			Help:      "Signed URLs issued by mode and bucket visibility",
		},
		[]string{"mode", "visibility"},
	)

	// cacheLookupsTotal counts catalog cache lookups.
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Catalog cache lookups by view and outcome (hit, miss, error)",
		},
		[]string{"view", "outcome"},
	)

	// confirmWritesTotal counts confirm-write calls.
	confirmWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "confirm_writes_total",
			Help:      "Confirmed writes by effect (created, refreshed)",
		},
		[]string{"effect"},
	)

	// deletionsTotal counts object deletions.
	deletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "deletions_total",
			Help:      "Object deletions by result (deleted, blob_error, error)",
		},
		[]string{"result"},
	)
)

// NewRegistry returns a registry holding the omem collectors plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	MustRegister(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// MustRegister adds the omem collectors to reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		registrationsTotal,
		registrationCollisionsTotal,
		capabilitiesIssuedTotal,
		cacheLookupsTotal,
		confirmWritesTotal,
		deletionsTotal,
	)
}

// RecordRegistration counts one registration outcome.
func RecordRegistration(result string) {
	registrationsTotal.WithLabelValues(result).Inc()
}

// RecordCollision counts one generated-id collision.
func RecordCollision() {
	registrationCollisionsTotal.Inc()
}

// RecordCapability counts one issued signed URL.
func RecordCapability(mode string, restricted bool) {
	visibility := "public"
	if restricted {
		visibility = "private"
	}
	capabilitiesIssuedTotal.WithLabelValues(mode, visibility).Inc()
}

// RecordCacheLookup counts one cache lookup for view.
func RecordCacheLookup(view, outcome string) {
	cacheLookupsTotal.WithLabelValues(view, outcome).Inc()
}

// RecordConfirmWrite counts one confirm-write.
func RecordConfirmWrite(created bool) {
	effect := "refreshed"
	if created {
		effect = "created"
	}
	confirmWritesTotal.WithLabelValues(effect).Inc()
}

// RecordDeletion counts one deletion outcome.
func RecordDeletion(result string) {
	deletionsTotal.WithLabelValues(result).Inc()
}
