// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
restore.go - Restore State Machine

A restore walks a fixed sequence of steps:

	Idle -> Validating -> CreatingSafetyPoint -> Applying
	     -> ClearingDerivedState -> Done

with Failed reachable from any step, carrying the failing step's error.

The safety point is mandatory: a snapshot of current state is taken and
persisted before any domain store is touched, so an unwanted restore is
always recoverable by restoring the safety point. The apply step writes
stores in a fixed order (subscriptions, settings, cache) and is not
transactional — a mid-apply failure leaves a mixed state, recovered
manually via the restore point. All three payloads are decode-checked
before the first store write, which removes the most common cause of a
partial apply.

Up through CreatingSafetyPoint the operation honors context cancellation
cleanly (the extra restore-point file is harmless). Once Applying starts
the restore runs to completion or failure.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/subtrackd/subtrackd/internal/logging"
	"github.com/subtrackd/subtrackd/internal/model"
)

// RestoreManager validates a snapshot, creates a safety restore point,
// and applies the snapshot back into the domain stores. It borrows the
// snapshot for the duration of the restore and never mutates it.
type RestoreManager struct {
	builder *SnapshotBuilder
	local   *LocalBackupStore
	remote  RemoteSyncClient

	subscriptions SubscriptionStore
	settings      SettingsStore
	cache         CacheStore

	// onStep, when set, observes step transitions (progress reporting).
	onStep func(step RestoreStep)
}

// NewRestoreManager creates a restore manager. remote may be nil when
// cloud sync is disabled; restoring from LocationCloud then fails with
// ErrNotFound.
func NewRestoreManager(builder *SnapshotBuilder, local *LocalBackupStore, remote RemoteSyncClient,
	subs SubscriptionStore, settings SettingsStore, cache CacheStore) *RestoreManager {
	return &RestoreManager{
		builder:       builder,
		local:         local,
		remote:        remote,
		subscriptions: subs,
		settings:      settings,
		cache:         cache,
	}
}

// SetOnStep registers a step-transition observer.
func (rm *RestoreManager) SetOnStep(fn func(step RestoreStep)) {
	rm.onStep = fn
}

// Restore fetches a snapshot from the given source and applies it. An
// empty id selects the newest snapshot at that source.
func (rm *RestoreManager) Restore(ctx context.Context, source Location, id string) (*RestoreResult, error) {
	snapshot, err := rm.fetch(ctx, source, id)
	if err != nil {
		result := &RestoreResult{Step: StepFailed, FailedAt: StepValidating}
		result.Summary = fmt.Sprintf("Restore failed: could not load snapshot from %s", source)
		return result, err
	}
	return rm.RestoreSnapshot(ctx, snapshot)
}

// RestoreSnapshot applies an already-loaded snapshot (used by restore
// and by data import, which parses its snapshot from external bytes).
func (rm *RestoreManager) RestoreSnapshot(ctx context.Context, snapshot *Snapshot) (*RestoreResult, error) {
	start := time.Now()
	result := &RestoreResult{SnapshotCreatedAt: snapshot.CreatedAt}

	fail := func(step RestoreStep, err error) (*RestoreResult, error) {
		result.Step = StepFailed
		result.FailedAt = step
		result.Duration = time.Since(start)
		result.Summary = fmt.Sprintf("Restore failed during %s", step)
		rm.step(StepFailed)
		logging.Error().Err(err).Str("step", string(step)).Msg("restore failed")
		return result, err
	}

	// Validating
	rm.step(StepValidating)
	if err := snapshot.Validate(); err != nil {
		return fail(StepValidating, err)
	}
	if err := rm.validatePayloads(snapshot); err != nil {
		return fail(StepValidating, err)
	}
	if err := ctx.Err(); err != nil {
		return fail(StepValidating, err)
	}

	// CreatingSafetyPoint
	rm.step(StepCreatingSafetyPoint)
	restorePoint, err := rm.createSafetyPoint()
	if err != nil {
		return fail(StepCreatingSafetyPoint, fmt.Errorf("%w: %v", ErrSafetyPoint, err))
	}
	result.RestorePointID = restorePoint.ID
	if err := ctx.Err(); err != nil {
		return fail(StepCreatingSafetyPoint, err)
	}

	// Applying. Fixed store order; not cancellable once started.
	rm.step(StepApplying)
	if err := rm.apply(snapshot); err != nil {
		return fail(StepApplying, err)
	}

	// ClearingDerivedState
	rm.step(StepClearingDerived)
	if err := rm.clearDerived(snapshot); err != nil {
		return fail(StepClearingDerived, err)
	}

	// Done
	result.Step = StepDone
	result.Duration = time.Since(start)
	result.Summary = fmt.Sprintf("Restored snapshot from %s (restore point %s available)",
		snapshot.CreatedAt.Format(time.RFC3339), shortID(restorePoint.ID))
	rm.step(StepDone)

	logging.Info().
		Time("snapshot_created_at", snapshot.CreatedAt).
		Str("restore_point", restorePoint.ID).
		Dur("duration", result.Duration).
		Msg("restore completed")
	return result, nil
}

// fetch loads the snapshot to restore from the requested location.
func (rm *RestoreManager) fetch(ctx context.Context, source Location, id string) (*Snapshot, error) {
	switch source {
	case LocationCloud:
		if rm.remote == nil {
			return nil, fmt.Errorf("%w: cloud sync is not configured", ErrNotFound)
		}
		return rm.remote.Download(ctx, id)
	default:
		if id == "" {
			latest, err := rm.local.Latest(false)
			if err != nil {
				return nil, err
			}
			id = latest.ID
		}
		return rm.local.Read(id)
	}
}

// validatePayloads decode-checks every payload before any store write.
func (rm *RestoreManager) validatePayloads(snapshot *Snapshot) error {
	var subs []*model.Subscription
	if err := json.Unmarshal(snapshot.Payload.Subscriptions, &subs); err != nil {
		return errInvalidSnapshot(fmt.Sprintf("subscriptions payload undecodable: %v", err))
	}
	if len(snapshot.Payload.Settings) > 0 {
		var settings map[string]json.RawMessage
		if err := json.Unmarshal(snapshot.Payload.Settings, &settings); err != nil {
			return errInvalidSnapshot(fmt.Sprintf("settings payload undecodable: %v", err))
		}
	}
	if len(snapshot.Payload.Cache) > 0 {
		var cache map[string][]byte
		if err := json.Unmarshal(snapshot.Payload.Cache, &cache); err != nil {
			return errInvalidSnapshot(fmt.Sprintf("cache payload undecodable: %v", err))
		}
	}
	return nil
}

// createSafetyPoint snapshots current state and persists it locally as a
// restore point. Writing the restore point also prunes the prior one, so
// at most one is ever kept.
func (rm *RestoreManager) createSafetyPoint() (*BackupRecord, error) {
	snapshot, err := rm.builder.Build()
	if err != nil {
		return nil, err
	}
	snapshot.IsRestorePoint = true

	record, err := rm.local.Write(snapshot)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// apply writes the snapshot payloads into the domain stores in the fixed
// order: subscriptions, then settings, then cache.
func (rm *RestoreManager) apply(snapshot *Snapshot) error {
	if err := rm.subscriptions.ImportAll(snapshot.Payload.Subscriptions); err != nil {
		return fmt.Errorf("apply subscriptions: %w", err)
	}
	if len(snapshot.Payload.Settings) > 0 {
		if err := rm.settings.ImportAll(snapshot.Payload.Settings); err != nil {
			return fmt.Errorf("apply settings: %w", err)
		}
	}
	if len(snapshot.Payload.Cache) > 0 {
		if err := rm.cache.ImportAll(snapshot.Payload.Cache); err != nil {
			return fmt.Errorf("apply cache: %w", err)
		}
	}
	return nil
}

// clearDerived purges derived cache contents when the snapshot carried no
// cache payload: everything in the cache is reproducible, and stale
// derived data must not outlive the state it was derived from.
func (rm *RestoreManager) clearDerived(snapshot *Snapshot) error {
	if len(snapshot.Payload.Cache) > 0 {
		return nil
	}
	if err := rm.cache.ClearAll(); err != nil {
		return fmt.Errorf("clear derived cache: %w", err)
	}
	return nil
}

// step notifies the step observer, if any.
func (rm *RestoreManager) step(step RestoreStep) {
	if rm.onStep != nil {
		rm.onStep(step)
	}
}
