// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
facade.go - Backup Engine Facade

The Facade is the single entry point for every backup, restore, import,
export, and wipe operation. It owns:

  - the single-flight guard: at most one mutating operation runs at a
    time, enforced with a compare-and-swap so a second caller fails fast
    with ErrOperationInProgress instead of queueing;
  - cloud failure policy: a circuit breaker around uploads, and the
    local-first rule that a dual-destination backup whose upload fails
    still succeeds with a warning;
  - progress and status reporting for the HTTP API.

Read-only queries (ListBackups, Status) bypass the guard.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/subtrackd/subtrackd/internal/config"
	"github.com/subtrackd/subtrackd/internal/logging"
	"github.com/subtrackd/subtrackd/internal/metrics"
)

// ProgressFunc observes operation progress. phase is a short
// machine-readable label; percent runs 0 to 100.
type ProgressFunc func(phase string, percent int)

// Facade coordinates all backup engine operations behind a single-flight
// guard.
type Facade struct {
	cfg     config.BackupConfig
	cloud   config.CloudConfig
	builder *SnapshotBuilder
	local   *LocalBackupStore
	remote  RemoteSyncClient
	restore *RestoreManager
	convert *Converter
	clock   Clock

	subscriptions SubscriptionStore
	settings      SettingsStore
	cache         CacheStore

	breaker *gobreaker.CircuitBreaker[any]

	// busy is the single-flight guard over mutating operations.
	busy atomic.Bool

	mu            sync.RWMutex
	progressPct   int
	progressPhase string
	onProgress    ProgressFunc
	lastErr       string
	lastBackupAt  *time.Time
	lastRestoreAt *time.Time
}

// NewFacade wires the engine together. remote may be nil when cloud sync
// is disabled.
func NewFacade(cfg config.BackupConfig, cloud config.CloudConfig,
	builder *SnapshotBuilder, local *LocalBackupStore, remote RemoteSyncClient,
	restore *RestoreManager, convert *Converter, clock Clock,
	subs SubscriptionStore, settings SettingsStore, cache CacheStore) *Facade {

	f := &Facade{
		cfg:           cfg,
		cloud:         cloud,
		builder:       builder,
		local:         local,
		remote:        remote,
		restore:       restore,
		convert:       convert,
		clock:         clock,
		subscriptions: subs,
		settings:      settings,
		cache:         cache,
	}

	f.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "cloud-upload",
		MaxRequests: 1,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CloudBreakerState.Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("cloud breaker state changed")
		},
	})

	restore.SetOnStep(f.restoreStepProgress)
	return f
}

// SetOnProgress registers a progress observer for long operations.
func (f *Facade) SetOnProgress(fn ProgressFunc) {
	f.mu.Lock()
	f.onProgress = fn
	f.mu.Unlock()
}

// acquire takes the single-flight guard, or fails with
// ErrOperationInProgress when another mutating operation holds it.
func (f *Facade) acquire(op string) error {
	if !f.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s rejected", ErrOperationInProgress, op)
	}
	metrics.OperationsInFlight.Set(1)
	f.setProgress(op, 0)
	f.setLastErr("")
	return nil
}

// release returns the single-flight guard.
func (f *Facade) release() {
	metrics.OperationsInFlight.Set(0)
	f.busy.Store(false)
}

// PerformBackup builds a snapshot and writes it to the requested
// destination. Local-first: for DestinationBoth the snapshot is durably
// on disk before the upload starts, and an upload failure downgrades to
// a warning carried in the outcome rather than an error.
func (f *Facade) PerformBackup(ctx context.Context, trigger Trigger, destination Destination) (*BackupOutcome, error) {
	if err := f.acquire("backup"); err != nil {
		return nil, err
	}
	defer f.release()

	start := time.Now()
	outcome := &BackupOutcome{}

	finish := func(status string, err error) (*BackupOutcome, error) {
		outcome.Duration = time.Since(start)
		metrics.BackupsTotal.WithLabelValues(string(trigger), string(destination), status).Inc()
		metrics.BackupDurationSeconds.Observe(outcome.Duration.Seconds())
		if err != nil {
			f.setLastErr(err.Error())
		}
		return outcome, err
	}

	f.setProgress("building", 10)
	snapshot, err := f.builder.Build()
	if err != nil {
		return finish("failure", err)
	}
	if trigger == TriggerPreRestore {
		snapshot.IsRestorePoint = true
	}

	if destination.includesLocal() {
		f.setProgress("writing_local", 40)
		record, err := f.local.Write(snapshot)
		if err != nil {
			return finish("failure", err)
		}
		outcome.Record = record
	}

	if destination.includesCloud() {
		f.setProgress("uploading", 70)
		if err := f.upload(ctx, snapshot); err != nil {
			metrics.CloudSyncFailuresTotal.Inc()
			if destination == DestinationCloud {
				return finish("failure", err)
			}
			// Local copy is safe; surface the upload failure as a warning.
			outcome.CloudError = err.Error()
			logging.Warn().Err(err).Msg("local backup succeeded, cloud upload failed")
		} else {
			outcome.CloudSynced = true
		}
	}

	now := f.clock.Now()
	f.mu.Lock()
	f.lastBackupAt = &now
	f.mu.Unlock()

	outcome.Summary = backupSummary(destination, outcome)
	f.setProgress("done", 100)
	logging.Info().
		Str("trigger", string(trigger)).
		Str("destination", string(destination)).
		Bool("cloud_synced", outcome.CloudSynced).
		Msg("backup completed")
	return finish("success", nil)
}

// upload transmits the snapshot through the circuit breaker under the
// configured cloud timeout.
func (f *Facade) upload(ctx context.Context, snapshot *Snapshot) error {
	if f.remote == nil {
		return fmt.Errorf("%w: cloud sync is not configured", ErrNetwork)
	}

	timeout := f.cloud.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	_, err := f.breaker.Execute(func() (any, error) {
		uctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return nil, f.remote.Upload(uctx, snapshot)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: cloud uploads suspended after repeated failures", ErrNetwork)
	}
	return err
}

// RestoreFromBackup restores from a stored snapshot; an empty id selects
// the newest snapshot at the source.
func (f *Facade) RestoreFromBackup(ctx context.Context, source Location, id string) (*RestoreResult, error) {
	if err := f.acquire("restore"); err != nil {
		return nil, err
	}
	defer f.release()

	result, err := f.restore.Restore(ctx, source, id)
	f.recordRestore(string(source), result, err)
	return result, err
}

// recordRestore updates status and metrics after a restore-path operation.
func (f *Facade) recordRestore(source string, result *RestoreResult, err error) {
	status := "success"
	if err != nil {
		status = "failure"
		f.setLastErr(err.Error())
	} else {
		now := f.clock.Now()
		f.mu.Lock()
		f.lastRestoreAt = &now
		f.mu.Unlock()
	}
	metrics.RestoresTotal.WithLabelValues(source, status).Inc()
	if result != nil {
		metrics.RestoreDurationSeconds.Observe(result.Duration.Seconds())
	}
}

// ListBackups returns local backup records, newest first.
func (f *Facade) ListBackups() []*BackupRecord {
	return f.local.List()
}

// DeleteBackup removes one local backup by record id.
func (f *Facade) DeleteBackup(id string) error {
	return f.local.Delete(id)
}

// ExportData builds a fresh snapshot, renders it in the requested format,
// and writes it to the export directory. Returns the written file path.
func (f *Facade) ExportData(format Format) (string, error) {
	if err := f.acquire("export"); err != nil {
		return "", err
	}
	defer f.release()

	snapshot, err := f.builder.Build()
	if err != nil {
		f.setLastErr(err.Error())
		return "", err
	}

	data, err := f.convert.Export(snapshot, format)
	if err != nil {
		f.setLastErr(err.Error())
		return "", err
	}

	name := fmt.Sprintf("subtrackd-export-%s.%s", snapshot.CreatedAt.UTC().Format(filenameTimeLayout), format)
	path := filepath.Join(f.cfg.ExportDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		f.setLastErr(err.Error())
		return "", fmt.Errorf("write export file: %w", err)
	}

	f.setProgress("done", 100)
	logging.Info().Str("path", path).Str("format", string(format)).Msg("data exported")
	return path, nil
}

// ImportData parses external bytes in the given format and applies them
// through the full restore path, safety point included.
func (f *Facade) ImportData(ctx context.Context, data []byte, format Format) (*RestoreResult, error) {
	if err := f.acquire("import"); err != nil {
		return nil, err
	}
	defer f.release()

	snapshot, err := f.convert.Import(data, format)
	if err != nil {
		f.setLastErr(err.Error())
		return nil, err
	}

	result, err := f.restore.RestoreSnapshot(ctx, snapshot)
	f.recordRestore("import", result, err)
	return result, err
}

// ClearAllData wipes every domain store. A restore point is taken first
// so the wipe is recoverable until the next restore displaces it.
func (f *Facade) ClearAllData() error {
	if err := f.acquire("clear_all"); err != nil {
		return err
	}
	defer f.release()

	snapshot, err := f.builder.Build()
	if err != nil {
		f.setLastErr(err.Error())
		return fmt.Errorf("%w: %v", ErrSafetyPoint, err)
	}
	snapshot.IsRestorePoint = true
	if _, err := f.local.Write(snapshot); err != nil {
		f.setLastErr(err.Error())
		return fmt.Errorf("%w: %v", ErrSafetyPoint, err)
	}

	if err := f.subscriptions.ClearAll(); err != nil {
		f.setLastErr(err.Error())
		return fmt.Errorf("clear subscriptions: %w", err)
	}
	if err := f.settings.ClearAll(); err != nil {
		f.setLastErr(err.Error())
		return fmt.Errorf("clear settings: %w", err)
	}
	if err := f.cache.ClearAll(); err != nil {
		f.setLastErr(err.Error())
		return fmt.Errorf("clear cache: %w", err)
	}

	logging.Info().Msg("all domain data cleared")
	return nil
}

// ClearCache wipes only the derived-data cache. Safe at any time; cache
// contents are reproducible.
func (f *Facade) ClearCache() error {
	return f.cache.ClearAll()
}

// Status recomputes the engine-wide sync status.
func (f *Facade) Status() *SyncStatus {
	f.mu.RLock()
	status := &SyncStatus{
		LocalEnabled:  f.cfg.Enabled,
		CloudEnabled:  f.cloud.Enabled,
		LastBackupAt:  f.lastBackupAt,
		LastRestoreAt: f.lastRestoreAt,
	}
	f.mu.RUnlock()

	status.LocalCount = len(f.local.List())
	status.LocalSizeBytes = f.local.TotalSizeBytes()

	if f.remote != nil && f.cloud.Enabled {
		status.LastSyncAt = f.remote.LastSyncAt()
		maxAge := time.Duration(f.cloud.MaxStaleHours) * time.Hour
		status.CloudStale = f.remote.IsStale(maxAge)
	}
	return status
}

// Progress returns the current operation phase and percent, plus the most
// recent operation error (empty when the last operation succeeded).
func (f *Facade) Progress() (phase string, percent int, lastErr string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.progressPhase, f.progressPct, f.lastErr
}

// setProgress records and publishes a progress transition.
func (f *Facade) setProgress(phase string, percent int) {
	f.mu.Lock()
	f.progressPhase = phase
	f.progressPct = percent
	fn := f.onProgress
	f.mu.Unlock()

	if fn != nil {
		fn(phase, percent)
	}
}

// restoreStepProgress maps restore steps onto the progress scale.
func (f *Facade) restoreStepProgress(step RestoreStep) {
	percent := map[RestoreStep]int{
		StepValidating:          10,
		StepCreatingSafetyPoint: 30,
		StepApplying:            60,
		StepClearingDerived:     85,
		StepDone:                100,
	}[step]
	f.setProgress(string(step), percent)
}

// setLastErr records the most recent operation error for status queries.
func (f *Facade) setLastErr(msg string) {
	f.mu.Lock()
	f.lastErr = msg
	f.mu.Unlock()
}

// backupSummary renders the one-line outcome description.
func backupSummary(destination Destination, outcome *BackupOutcome) string {
	switch {
	case destination == DestinationLocal:
		return "Backup saved locally"
	case outcome.CloudSynced && outcome.Record != nil:
		return "Backup saved locally and synced to cloud"
	case outcome.CloudSynced:
		return "Backup synced to cloud"
	default:
		return "Backup saved locally; cloud sync failed"
	}
}
