// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package backup

import (
	"context"
	"runtime"
	"time"

	"github.com/subtrackd/subtrackd/internal/model"
)

// SchemaVersion is the snapshot format version written by this build.
const SchemaVersion = "1"

// Location identifies where a snapshot is persisted.
type Location string

const (
	// LocationLocal is the on-device backup directory.
	LocationLocal Location = "local"

	// LocationCloud is the remote object store.
	LocationCloud Location = "cloud"
)

// Destination selects where a backup is written.
type Destination string

const (
	DestinationLocal Destination = "local"
	DestinationCloud Destination = "cloud"
	DestinationBoth  Destination = "both"
)

// includesLocal reports whether the destination writes a local backup.
func (d Destination) includesLocal() bool {
	return d == DestinationLocal || d == DestinationBoth
}

// includesCloud reports whether the destination uploads to the remote store.
func (d Destination) includesCloud() bool {
	return d == DestinationCloud || d == DestinationBoth
}

// Trigger indicates what initiated a backup.
type Trigger string

const (
	// TriggerManual is a user-initiated backup.
	TriggerManual Trigger = "manual"

	// TriggerAuto is a scheduler-initiated backup.
	TriggerAuto Trigger = "auto"

	// TriggerPreRestore is the safety snapshot taken before a restore.
	TriggerPreRestore Trigger = "pre_restore"
)

// DeviceInfo is informational metadata about the device that produced a
// snapshot. It is never used functionally.
type DeviceInfo struct {
	Platform  string `json:"platform"`
	OSVersion string `json:"os_version"`
}

// currentDevice returns device info for snapshots produced by this process.
func currentDevice() DeviceInfo {
	return DeviceInfo{
		Platform:  runtime.GOOS,
		OSVersion: runtime.GOARCH,
	}
}

// SnapshotPayload carries the serialized domain data of one snapshot.
// The byte slices are opaque to the engine; their format is owned by the
// exporting stores.
type SnapshotPayload struct {
	Subscriptions []byte `json:"subscriptions"`
	Settings      []byte `json:"settings,omitempty"`
	Cache         []byte `json:"cache,omitempty"`
}

// Snapshot is an immutable point-in-time capture of all backed-up domain
// data. Once created it is never mutated; restore borrows it read-only.
type Snapshot struct {
	Version        string          `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	Device         DeviceInfo      `json:"device"`
	Payload        SnapshotPayload `json:"payload"`
	IsRestorePoint bool            `json:"is_restore_point,omitempty"`
}

// Validate checks the snapshot invariant: a non-empty version, a real
// creation time, and a present subscriptions payload.
func (s *Snapshot) Validate() error {
	if s.Version == "" {
		return errInvalidSnapshot("missing version")
	}
	if s.CreatedAt.IsZero() {
		return errInvalidSnapshot("missing creation time")
	}
	if len(s.Payload.Subscriptions) == 0 {
		return errInvalidSnapshot("missing subscriptions payload")
	}
	return nil
}

// BackupRecord is the metadata describing one persisted snapshot. It is
// created the instant a snapshot is durably written and destroyed when the
// snapshot is pruned or deleted.
type BackupRecord struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	SizeBytes      int64     `json:"size_bytes"`
	CreatedAt      time.Time `json:"created_at"`
	Location       Location  `json:"location"`
	IsRestorePoint bool      `json:"is_restore_point,omitempty"`
}

// SyncStatus is the process-wide backup status, recomputed on each query.
type SyncStatus struct {
	LocalEnabled  bool       `json:"local_enabled"`
	CloudEnabled  bool       `json:"cloud_enabled"`
	CloudStale    bool       `json:"cloud_stale"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastBackupAt  *time.Time `json:"last_backup_at,omitempty"`
	LastRestoreAt *time.Time `json:"last_restore_at,omitempty"`

	// Aggregates over the local store.
	LocalCount     int   `json:"local_count"`
	LocalSizeBytes int64 `json:"local_size_bytes"`
}

// BackupOutcome is the terminal result of one PerformBackup call.
type BackupOutcome struct {
	Record *BackupRecord `json:"record,omitempty"`

	// CloudSynced is true when the snapshot reached the remote store.
	CloudSynced bool `json:"cloud_synced"`

	// CloudError carries a non-fatal cloud failure: the backup succeeded
	// locally but the upload did not. Surfaced as a warning, not an error.
	CloudError string `json:"cloud_error,omitempty"`

	// Summary is a single human-readable line describing what ran.
	Summary string `json:"summary"`

	Duration time.Duration `json:"duration_ms"`
}

// RestoreStep is one step of the restore state machine.
type RestoreStep string

const (
	StepIdle                RestoreStep = "idle"
	StepValidating          RestoreStep = "validating"
	StepCreatingSafetyPoint RestoreStep = "creating_safety_point"
	StepApplying            RestoreStep = "applying"
	StepClearingDerived     RestoreStep = "clearing_derived_state"
	StepDone                RestoreStep = "done"
	StepFailed              RestoreStep = "failed"
)

// RestoreResult is the terminal result of one restore operation.
type RestoreResult struct {
	// Step is the last step reached; StepDone on success, StepFailed
	// otherwise, with FailedAt naming the step that broke.
	Step     RestoreStep `json:"step"`
	FailedAt RestoreStep `json:"failed_at,omitempty"`

	// RestorePointID identifies the safety snapshot taken before apply;
	// restoring it undoes this restore.
	RestorePointID string `json:"restore_point_id,omitempty"`

	// SnapshotCreatedAt is the creation time of the restored snapshot.
	SnapshotCreatedAt time.Time `json:"snapshot_created_at"`

	// Summary is a single human-readable line describing what ran.
	Summary string `json:"summary"`

	Duration time.Duration `json:"duration_ms"`
}

// SubscriptionStore supplies and accepts the serialized subscription data.
type SubscriptionStore interface {
	ExportAll() ([]byte, error)
	ImportAll(data []byte) error
	ClearAll() error
}

// SettingsStore supplies and accepts serialized settings, and owns the
// auto-backup policy the scheduler consumes.
type SettingsStore interface {
	ExportAll() ([]byte, error)
	ImportAll(data []byte) error
	ClearAll() error
	AutoBackupPolicy() (model.AutoBackupPolicy, error)
	SetAutoBackupPolicy(policy model.AutoBackupPolicy) error
}

// CacheStore supplies and accepts serialized derived data. Its contents
// are reproducible; clearing it is always safe.
type CacheStore interface {
	ExportAll() ([]byte, error)
	ImportAll(data []byte) error
	ClearAll() error
	EntryCount() (int, error)
}

// Clock supplies the current time. Production code uses SystemClock;
// tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// RemoteSyncClient transmits snapshots to and from the remote store. It
// performs no retries; retry and backoff policy belongs to the caller.
// Remote writes are append-style with no conflict resolution: if two
// devices sync concurrently, the later upload wins.
type RemoteSyncClient interface {
	// Upload transmits the full snapshot.
	Upload(ctx context.Context, snapshot *Snapshot) error

	// Download fetches a specific remote snapshot, or the most recent
	// when id is empty. Fails with ErrNotFound when none exist.
	Download(ctx context.Context, id string) (*Snapshot, error)

	// LastSyncAt returns the time of the last successful upload, or nil
	// if none has occurred in this process.
	LastSyncAt() *time.Time

	// IsStale reports whether the last successful sync is older than
	// maxAge. A client that has never synced is always stale.
	IsStale(maxAge time.Duration) bool
}
