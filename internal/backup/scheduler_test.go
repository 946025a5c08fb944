// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/subtrackd/subtrackd/internal/model"
)

func TestShouldRunAutoBackup(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	hoursAgo := func(h float64) *time.Time {
		ts := now.Add(-time.Duration(h * float64(time.Hour)))
		return &ts
	}

	tests := []struct {
		name   string
		policy model.AutoBackupPolicy
		want   bool
	}{
		{
			name:   "disabled never runs",
			policy: model.AutoBackupPolicy{Enabled: false, Frequency: model.FrequencyDaily},
			want:   false,
		},
		{
			name:   "manual frequency never runs",
			policy: model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyManual},
			want:   false,
		},
		{
			name:   "never run before is always due",
			policy: model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyDaily},
			want:   true,
		},
		{
			name:   "daily not yet elapsed",
			policy: model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyDaily, LastRunAt: hoursAgo(23)},
			want:   false,
		},
		{
			name:   "daily exactly elapsed",
			policy: model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyDaily, LastRunAt: hoursAgo(24)},
			want:   true,
		},
		{
			name:   "daily past due",
			policy: model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyDaily, LastRunAt: hoursAgo(25)},
			want:   true,
		},
		{
			name:   "hourly elapsed",
			policy: model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyHourly, LastRunAt: hoursAgo(1.5)},
			want:   true,
		},
		{
			name:   "weekly not yet elapsed",
			policy: model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyWeekly, LastRunAt: hoursAgo(100)},
			want:   false,
		},
		{
			name:   "weekly elapsed",
			policy: model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyWeekly, LastRunAt: hoursAgo(169)},
			want:   true,
		},
		{
			name:   "unknown frequency never runs",
			policy: model.AutoBackupPolicy{Enabled: true, Frequency: "fortnightly"},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRunAutoBackup(tt.policy, now); got != tt.want {
				t.Errorf("ShouldRunAutoBackup() = %v, want %v", got, tt.want)
			}
		})
	}
}

// fakeRunner records PerformBackup invocations.
type fakeRunner struct {
	err          error
	calls        int
	trigger      Trigger
	destinations []Destination
}

func (r *fakeRunner) PerformBackup(_ context.Context, trigger Trigger, destination Destination) (*BackupOutcome, error) {
	r.calls++
	r.trigger = trigger
	r.destinations = append(r.destinations, destination)
	if r.err != nil {
		return nil, r.err
	}
	return &BackupOutcome{Summary: "ok"}, nil
}

func TestSchedulerEvaluateRunsDueBackup(t *testing.T) {
	_, _, settings, _ := newFakeStores()
	settings.policy = model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyDaily}

	runner := &fakeRunner{}
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s := NewScheduler(settings, runner, nil, fixedClock{now: now})

	s.evaluate(context.Background())

	if runner.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.calls)
	}
	if runner.trigger != TriggerAuto {
		t.Errorf("trigger = %q, want %q", runner.trigger, TriggerAuto)
	}
	if runner.destinations[0] != DestinationLocal {
		t.Errorf("destination = %q, want local when cloud disabled", runner.destinations[0])
	}
	if settings.policy.LastRunAt == nil || !settings.policy.LastRunAt.Equal(now) {
		t.Errorf("LastRunAt = %v, want %v", settings.policy.LastRunAt, now)
	}

	// A second evaluation at the same instant is not due again.
	s.evaluate(context.Background())
	if runner.calls != 1 {
		t.Errorf("runner calls after second evaluate = %d, want 1", runner.calls)
	}
}

func TestSchedulerEvaluateCloudEnabled(t *testing.T) {
	_, _, settings, _ := newFakeStores()
	settings.policy = model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyDaily, CloudEnabled: true}

	runner := &fakeRunner{}
	s := NewScheduler(settings, runner, nil, SystemClock{})

	s.evaluate(context.Background())

	if runner.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.calls)
	}
	if runner.destinations[0] != DestinationBoth {
		t.Errorf("destination = %q, want both when cloud enabled", runner.destinations[0])
	}
}

func TestSchedulerEvaluateSkipsWhenBusy(t *testing.T) {
	_, _, settings, _ := newFakeStores()
	settings.policy = model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyDaily}

	runner := &fakeRunner{err: ErrOperationInProgress}
	s := NewScheduler(settings, runner, nil, SystemClock{})

	s.evaluate(context.Background())

	// The run was rejected, so LastRunAt must stay unset for a retry.
	if settings.policy.LastRunAt != nil {
		t.Error("LastRunAt must not advance when the backup was rejected")
	}
}

func TestSchedulerEvaluateKeepsLastRunOnFailure(t *testing.T) {
	_, _, settings, _ := newFakeStores()
	settings.policy = model.AutoBackupPolicy{Enabled: true, Frequency: model.FrequencyDaily}

	runner := &fakeRunner{err: errors.New("disk full")}
	s := NewScheduler(settings, runner, nil, SystemClock{})

	s.evaluate(context.Background())

	if settings.policy.LastRunAt != nil {
		t.Error("LastRunAt must not advance when the backup failed")
	}
}
