// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backup implements the snapshot, backup, restore, and sync engine
// for subtrackd.
//
// The engine snapshots all domain data (subscriptions, settings, cache)
// into a single versioned Snapshot, persists it locally with retention
// limits, optionally replicates it to an S3-compatible remote store, and
// can roll the application back to a prior snapshot on demand.
//
// Architecture:
//
//	┌───────────┐    ┌──────────────┐    ┌──────────────────┐
//	│ Scheduler │───▶│    Facade    │───▶│ SnapshotBuilder  │
//	└───────────┘    └──────┬───────┘    └──────────────────┘
//	                        │
//	              ┌─────────┼──────────┐
//	              ▼         ▼          ▼
//	      ┌───────────┐ ┌────────┐ ┌─────────────┐
//	      │ LocalStore│ │ Remote │ │ RestoreMgr  │
//	      │ (files +  │ │ (S3)   │ │ (step state │
//	      │ retention)│ │        │ │  machine)   │
//	      └───────────┘ └────────┘ └─────────────┘
//
// Concurrency: the Facade is the single entry point and enforces
// single-flight execution — at most one backup or restore runs at a time;
// a second request fails with ErrOperationInProgress instead of queueing.
//
// Ordering guarantees: within one backup the local write always precedes
// the remote upload; within one restore the safety point is always created
// before any domain store is mutated.
//
// Usage:
//
//	facade := backup.NewFacade(deps)
//	outcome, err := facade.PerformBackup(ctx, backup.TriggerManual, backup.DestinationBoth)
//
//	result, err := facade.RestoreFromBackup(ctx, backup.LocationLocal, recordID)
package backup
