// Package metrics defines and registers all custom Prometheus metrics for the
// blood donation API. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default registry on package init via
// promauto and exposed by the /metrics handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "blood"

// ── Ledger metrics ────────────────────────────────────────────────────────────

// DonationsSubmittedTotal counts donation submissions.
// Label:
//   - result: "created" or "replayed" (matched an earlier Idempotency-Key)
var DonationsSubmittedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "donations_submitted_total",
		Help:      "Total number of donation submissions, by result.",
	},
	[]string{"result"},
)

// DonationsApprovedTotal counts donations moved from Pending to Completed.
var DonationsApprovedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "donations_approved_total",
		Help:      "Total number of donations approved.",
	},
)

// LevelUpsTotal counts approvals that raised a user's level.
// Label:
//   - badge: the badge after the level up ("bronze", "silver", "gold")
var LevelUpsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "level_ups_total",
		Help:      "Total number of level ups, by resulting badge.",
	},
	[]string{"badge"},
)

// LedgerConflictsTotal counts guarded ledger writes that lost to a
// concurrent writer and were retried.
var LedgerConflictsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_write_conflicts_total",
		Help:      "Total number of ledger writes retried after a version conflict.",
	},
)

// ── Auth metrics ──────────────────────────────────────────────────────────────

// AuthFailuresTotal counts rejected credentials and role denials.
// Label:
//   - reason: "missing_header", "malformed_scheme", "invalid_token",
//     "invalid_credentials", "suspended", "role_denied"
var AuthFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Total number of authentication failures, by reason.",
	},
	[]string{"reason"},
)

// ── Request matching metrics ──────────────────────────────────────────────────

// BloodRequestsTotal counts blood request lifecycle actions.
// Label:
//   - action: "created", "accepted", "completed"
var BloodRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blood_requests_total",
		Help:      "Total number of blood request actions, by action.",
	},
	[]string{"action"},
)
