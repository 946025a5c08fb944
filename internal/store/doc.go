// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the Badger-backed domain stores: subscriptions,
// settings, and the derived-data cache. All three share one Badger database
// with per-store key prefixes.
//
// Each store exposes ExportAll/ImportAll/ClearAll so the backup engine can
// snapshot and restore domain data without knowing its internal layout. The
// export format is JSON and is treated as opaque bytes by the engine.
package store
