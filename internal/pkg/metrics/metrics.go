package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_workflow_transitions_total",
		Help: "Workflow transition attempts by action and outcome",
	}, []string{"action", "target_type", "outcome"})

	TransitionRefusals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_workflow_refusals_total",
		Help: "Refused workflow transitions by reason",
	}, []string{"reason"})

	PermissionChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_permission_checks_total",
		Help: "Permission resolver checks by result",
	}, []string{"result"})

	PermissionCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_permission_cache_total",
		Help: "Permission cache lookups by result",
	}, []string{"result"})

	AuditEventsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tms_audit_events_total",
		Help: "Audit events recorded by action kind",
	}, []string{"action"})

	AuditEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tms_audit_events_dropped_total",
		Help: "Audit events dropped because the queue was full",
	})

	AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tms_audit_queue_depth",
		Help: "Current depth of the audit event queue",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tms_request_latency_seconds",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
