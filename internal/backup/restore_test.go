// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package backup

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newRestoreFixture wires a restore manager over fakes and a real local
// store in a temp directory.
func newRestoreFixture(t *testing.T) (*RestoreManager, *opLog, *LocalBackupStore, *fakeSubscriptions, *fakeSettings, *fakeCache) {
	t.Helper()

	log, subs, settings, cache := newFakeStores()
	local, err := NewLocalBackupStore(t.TempDir(), 5, 1)
	if err != nil {
		t.Fatalf("NewLocalBackupStore() error = %v", err)
	}

	builder := NewSnapshotBuilder(subs, settings, cache, SystemClock{})
	rm := NewRestoreManager(builder, local, nil, subs, settings, cache)
	return rm, log, local, subs, settings, cache
}

func validRestoreSnapshot() *Snapshot {
	return &Snapshot{
		Version:   SchemaVersion,
		CreatedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		Payload: SnapshotPayload{
			Subscriptions: []byte(`[{"id":"s2","name":"Spotify"}]`),
			Settings:      []byte(`{"auto_backup_policy":{"enabled":true,"frequency":"daily"}}`),
			Cache:         []byte(`{"rates":"eyJVU0QiOjF9"}`),
		},
	}
}

func TestRestoreSuccessStepOrder(t *testing.T) {
	rm, log, local, _, _, _ := newRestoreFixture(t)

	var steps []RestoreStep
	rm.SetOnStep(func(step RestoreStep) { steps = append(steps, step) })

	result, err := rm.RestoreSnapshot(context.Background(), validRestoreSnapshot())
	if err != nil {
		t.Fatalf("RestoreSnapshot() error = %v", err)
	}
	if result.Step != StepDone {
		t.Errorf("Step = %q, want done", result.Step)
	}

	wantSteps := []RestoreStep{StepValidating, StepCreatingSafetyPoint, StepApplying, StepClearingDerived, StepDone}
	if len(steps) != len(wantSteps) {
		t.Fatalf("steps = %v, want %v", steps, wantSteps)
	}
	for i, want := range wantSteps {
		if steps[i] != want {
			t.Errorf("steps[%d] = %q, want %q", i, steps[i], want)
		}
	}

	// The safety point is persisted and referenced in the result.
	if result.RestorePointID == "" {
		t.Error("result must reference the safety restore point")
	}
	if _, err := local.Record(result.RestorePointID); err != nil {
		t.Errorf("restore point not found locally: %v", err)
	}

	// Stores are applied in the fixed order after the safety export.
	wantOps := []string{
		"subs.export", "settings.export", "cache.export",
		"subs.import", "settings.import", "cache.import",
	}
	ops := log.all()
	if len(ops) != len(wantOps) {
		t.Fatalf("store ops = %v, want %v", ops, wantOps)
	}
	for i, want := range wantOps {
		if ops[i] != want {
			t.Errorf("ops[%d] = %q, want %q", i, ops[i], want)
		}
	}
}

func TestRestoreRejectsInvalidSnapshotBeforeMutation(t *testing.T) {
	tests := []struct {
		name     string
		snapshot *Snapshot
	}{
		{
			name:     "missing version",
			snapshot: &Snapshot{CreatedAt: time.Now(), Payload: SnapshotPayload{Subscriptions: []byte(`[]`)}},
		},
		{
			name:     "missing subscriptions payload",
			snapshot: &Snapshot{Version: SchemaVersion, CreatedAt: time.Now()},
		},
		{
			name: "undecodable subscriptions payload",
			snapshot: &Snapshot{
				Version:   SchemaVersion,
				CreatedAt: time.Now(),
				Payload:   SnapshotPayload{Subscriptions: []byte(`{not json`)},
			},
		},
		{
			name: "undecodable settings payload",
			snapshot: &Snapshot{
				Version:   SchemaVersion,
				CreatedAt: time.Now(),
				Payload: SnapshotPayload{
					Subscriptions: []byte(`[]`),
					Settings:      []byte(`[1,2`),
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm, log, _, _, _, _ := newRestoreFixture(t)

			result, err := rm.RestoreSnapshot(context.Background(), tt.snapshot)
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Errorf("error = %v, want ErrInvalidSnapshot", err)
			}
			if result.Step != StepFailed || result.FailedAt != StepValidating {
				t.Errorf("result = %+v, want failed at validating", result)
			}
			if ops := log.all(); len(ops) != 0 {
				t.Errorf("no store may be touched on validation failure, got %v", ops)
			}
		})
	}
}

func TestRestoreAbortsWhenSafetyPointFails(t *testing.T) {
	rm, log, _, subs, _, _ := newRestoreFixture(t)

	// Building the safety snapshot needs a subscriptions export.
	subs.exportErr = errors.New("store offline")

	result, err := rm.RestoreSnapshot(context.Background(), validRestoreSnapshot())
	if !errors.Is(err, ErrSafetyPoint) {
		t.Errorf("error = %v, want ErrSafetyPoint", err)
	}
	if result.FailedAt != StepCreatingSafetyPoint {
		t.Errorf("FailedAt = %q, want creating_safety_point", result.FailedAt)
	}

	for _, op := range log.all() {
		if op == "subs.import" || op == "settings.import" || op == "cache.import" {
			t.Fatalf("no import may run after a failed safety point, got %v", log.all())
		}
	}
}

func TestRestoreFailureDuringApply(t *testing.T) {
	rm, _, _, _, settings, _ := newRestoreFixture(t)
	settings.importErr = errors.New("write failed")

	result, err := rm.RestoreSnapshot(context.Background(), validRestoreSnapshot())
	if err == nil {
		t.Fatal("expected apply failure")
	}
	if result.FailedAt != StepApplying {
		t.Errorf("FailedAt = %q, want applying", result.FailedAt)
	}
	// The restore point exists, so the mixed state is recoverable.
	if result.RestorePointID == "" {
		t.Error("failed apply must still reference the safety restore point")
	}
}

func TestRestoreClearsCacheWhenSnapshotHasNone(t *testing.T) {
	rm, log, _, _, _, _ := newRestoreFixture(t)

	snapshot := validRestoreSnapshot()
	snapshot.Payload.Cache = nil

	if _, err := rm.RestoreSnapshot(context.Background(), snapshot); err != nil {
		t.Fatalf("RestoreSnapshot() error = %v", err)
	}

	var cleared bool
	for _, op := range log.all() {
		if op == "cache.clear" {
			cleared = true
		}
		if op == "cache.import" {
			t.Error("cache.import must not run for a snapshot without cache payload")
		}
	}
	if !cleared {
		t.Error("cache must be cleared when the snapshot carries no cache payload")
	}
}

func TestRestoreHonorsCancellationBeforeApply(t *testing.T) {
	rm, log, _, _, _, _ := newRestoreFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rm.RestoreSnapshot(ctx, validRestoreSnapshot())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	for _, op := range log.all() {
		if op == "subs.import" {
			t.Error("apply must not start on a cancelled context")
		}
	}
}

func TestRestoreFromLocalLatest(t *testing.T) {
	rm, _, local, subs, _, _ := newRestoreFixture(t)

	snapshot := validRestoreSnapshot()
	if _, err := local.Write(snapshot); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	result, err := rm.Restore(context.Background(), LocationLocal, "")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.Step != StepDone {
		t.Errorf("Step = %q, want done", result.Step)
	}
	if string(subs.data) != string(snapshot.Payload.Subscriptions) {
		t.Errorf("subscriptions = %s, want restored payload", subs.data)
	}
}

func TestRestoreFromCloudWithoutClient(t *testing.T) {
	rm, _, _, _, _, _ := newRestoreFixture(t)

	if _, err := rm.Restore(context.Background(), LocationCloud, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound when cloud is not configured", err)
	}
}
