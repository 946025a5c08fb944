// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
scheduler.go - Automatic Backup Scheduling

The scheduling decision is a pure function, ShouldRunAutoBackup, kept free
of I/O so it is testable in isolation. The Scheduler runtime feeds that
decision from two producers:

  - a periodic ticker while the process runs, and
  - app-lifecycle foreground transitions reported by the host shell.

Both producers converge on the same decision function and the same
execution path, and actual execution is serialized by the Facade's
single-flight guard, so a ticker fire and a foreground event arriving
together cannot start two backups.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"time"

	"github.com/subtrackd/subtrackd/internal/logging"
	"github.com/subtrackd/subtrackd/internal/model"
)

// schedulerTickInterval is the fixed evaluation cadence. The decision
// function gates execution, so a fine tick costs nothing between due
// times and reacts quickly when a policy's interval elapses.
const schedulerTickInterval = time.Minute

// ShouldRunAutoBackup decides whether an automatic backup is due at the
// given instant. A policy that has never run is always due; otherwise the
// frequency's interval must have fully elapsed since the last run.
func ShouldRunAutoBackup(policy model.AutoBackupPolicy, now time.Time) bool {
	if !policy.Enabled || policy.Frequency == model.FrequencyManual {
		return false
	}

	intervalHours := policy.Frequency.IntervalHours()
	if intervalHours <= 0 {
		return false
	}

	if policy.LastRunAt == nil {
		return true
	}

	return now.Sub(*policy.LastRunAt) >= time.Duration(intervalHours)*time.Hour
}

// AutoBackupRunner executes one automatic backup. Implemented by the
// Facade; the scheduler never performs I/O itself.
type AutoBackupRunner interface {
	PerformBackup(ctx context.Context, trigger Trigger, destination Destination) (*BackupOutcome, error)
}

// AppLifecycle reports app foreground transitions. On server deployments
// this is typically a no-op implementation whose channel never fires.
type AppLifecycle interface {
	// Foreground delivers one event per background-to-foreground
	// transition.
	Foreground() <-chan struct{}
}

// NopLifecycle is an AppLifecycle that never reports transitions.
type NopLifecycle struct{}

// Foreground returns a channel that never delivers.
func (NopLifecycle) Foreground() <-chan struct{} { return nil }

// Scheduler evaluates the auto-backup policy on a timer and on lifecycle
// events, and runs due backups through the facade.
type Scheduler struct {
	settings  SettingsStore
	runner    AutoBackupRunner
	lifecycle AppLifecycle
	clock     Clock
}

// NewScheduler creates a scheduler over the settings store and runner.
func NewScheduler(settings SettingsStore, runner AutoBackupRunner, lifecycle AppLifecycle, clock Clock) *Scheduler {
	if lifecycle == nil {
		lifecycle = NopLifecycle{}
	}
	return &Scheduler{
		settings:  settings,
		runner:    runner,
		lifecycle: lifecycle,
		clock:     clock,
	}
}

// Serve runs the scheduling loop until the context is cancelled. The
// signature satisfies suture.Service so the scheduler can run supervised.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(schedulerTickInterval)
	defer ticker.Stop()

	// Evaluate once at startup; a process that was stopped past its due
	// time should not wait another full tick.
	s.evaluate(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.evaluate(ctx)
		case <-s.lifecycle.Foreground():
			logging.Debug().Msg("foreground transition, evaluating auto-backup")
			s.evaluate(ctx)
		}
	}
}

// evaluate loads the policy, decides, and runs a due backup. A backup
// rejected by the single-flight guard is skipped silently; the next
// evaluation retries.
func (s *Scheduler) evaluate(ctx context.Context) {
	policy, err := s.settings.AutoBackupPolicy()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to load auto-backup policy")
		return
	}

	now := s.clock.Now()
	if !ShouldRunAutoBackup(policy, now) {
		return
	}

	destination := DestinationLocal
	if policy.CloudEnabled {
		destination = DestinationBoth
	}

	outcome, err := s.runner.PerformBackup(ctx, TriggerAuto, destination)
	if errors.Is(err, ErrOperationInProgress) {
		logging.Debug().Msg("auto-backup skipped, operation already in flight")
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("auto-backup failed")
		return
	}

	policy.LastRunAt = &now
	if err := s.settings.SetAutoBackupPolicy(policy); err != nil {
		logging.Warn().Err(err).Msg("failed to record auto-backup run time")
	}

	logging.Info().Str("summary", outcome.Summary).Msg("auto-backup completed")
}
