// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics defines the Prometheus instrumentation for the backup
// engine. All collectors register on the default registry via promauto
// and are served on /metrics by the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "subtrackd"

var (
	// BackupsTotal counts completed backup attempts by trigger,
	// destination, and terminal status (success, failure).
	BackupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backups_total",
		Help:      "Completed backup attempts by trigger, destination, and status.",
	}, []string{"trigger", "destination", "status"})

	// BackupDurationSeconds observes end-to-end backup latency.
	BackupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backup_duration_seconds",
		Help:      "End-to-end backup duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// BackupSizeBytes reports the size of the most recent local snapshot.
	BackupSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backup_size_bytes",
		Help:      "Size in bytes of the most recently written local snapshot.",
	})

	// RetentionDeletionsTotal counts snapshots pruned by retention.
	RetentionDeletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retention_deletions_total",
		Help:      "Local snapshots deleted by retention pruning.",
	})

	// RestoresTotal counts completed restore attempts by source and
	// terminal status.
	RestoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "restores_total",
		Help:      "Completed restore attempts by source and status.",
	}, []string{"source", "status"})

	// RestoreDurationSeconds observes end-to-end restore latency.
	RestoreDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "restore_duration_seconds",
		Help:      "End-to-end restore duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// CloudSyncFailuresTotal counts failed remote uploads, including
	// non-fatal failures on dual-destination backups.
	CloudSyncFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cloud_sync_failures_total",
		Help:      "Failed snapshot uploads to the remote store.",
	})

	// CloudBreakerState reports the cloud circuit breaker state
	// (0 closed, 1 half-open, 2 open).
	CloudBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cloud_breaker_state",
		Help:      "Cloud upload circuit breaker state (0 closed, 1 half-open, 2 open).",
	})

	// OperationsInFlight reports whether a backup or restore currently
	// holds the single-flight guard (0 or 1).
	OperationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "operations_in_flight",
		Help:      "Whether a backup or restore operation is currently running.",
	})
)
