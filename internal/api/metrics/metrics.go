// Package metrics defines and registers the custom Prometheus metrics of the
// student lifecycle API. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default registry on package load through
// promauto; HTTP request metrics come from the echoprometheus middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "student_lifecycle"

// ── Bulk provisioning ────────────────────────────────────────────────────────

// ProvisionedStudentsTotal counts reconciled students of bulk batches.
// Label:
//   - outcome: "success" or "failure"
var ProvisionedStudentsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provisioned_students_total",
		Help:      "Total number of students reconciled by bulk provisioning, by outcome.",
	},
	[]string{"outcome"},
)

// BulkBatchSize observes the number of students per accepted batch.
var BulkBatchSize = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "bulk_batch_size",
		Help:      "Number of students submitted per bulk provisioning batch.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
	},
)

// BulkReplaysTotal counts batches answered from the idempotency cache.
var BulkReplaysTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bulk_replays_total",
		Help:      "Total number of bulk batches served from the idempotency cache.",
	},
)

// ── Email changes and deletions ──────────────────────────────────────────────

// OperationsTotal counts single-student lifecycle operations.
// Labels:
//   - operation: "update_email" or "delete_student"
//   - result: error kind ("none" on success, e.g. "email_conflict", "not_found")
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Total number of email change and deletion operations, by result kind.",
	},
	[]string{"operation", "result"},
)

// EnrollmentsTouchedTotal counts enrollment documents rewritten or deleted.
// Label:
//   - operation: "update_email" or "delete_student"
var EnrollmentsTouchedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrollments_touched_total",
		Help:      "Total number of enrollment documents rewritten or deleted.",
	},
	[]string{"operation"},
)

// DeletionBranchFailuresTotal counts cascading deletion branches that did not complete.
// Label:
//   - branch: "account", "profile" or "enrollments"
var DeletionBranchFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deletion_branch_failures_total",
		Help:      "Total number of cascading deletion branches reported as failed.",
	},
	[]string{"branch"},
)

// OperationDuration measures lifecycle operations end to end.
// Label:
//   - operation: "bulk_create", "update_email" or "delete_student"
var OperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Duration of lifecycle operations from request to response.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation"},
)
