// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/subtrackd/subtrackd/internal/model"
)

// openTestDB opens a Badger database in a temp directory and closes it
// with the test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func testSubscription(name string) *model.Subscription {
	return &model.Subscription{
		Name:            name,
		Category:        "entertainment",
		Amount:          9.99,
		Currency:        "USD",
		BillingCycle:    model.CycleMonthly,
		NextPaymentDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Status:          model.StatusActive,
	}
}

func TestSubscriptionStorePutGetDelete(t *testing.T) {
	subs := NewSubscriptionStore(openTestDB(t))

	sub := testSubscription("Netflix")
	if err := subs.Put(sub); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if sub.ID == "" {
		t.Fatal("Put() must assign an ID")
	}

	got, err := subs.Get(sub.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Netflix" {
		t.Errorf("Name = %q, want Netflix", got.Name)
	}

	if err := subs.Delete(sub.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := subs.Get(sub.ID); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrSubscriptionNotFound", err)
	}
}

func TestSubscriptionStorePutRejectsInvalid(t *testing.T) {
	subs := NewSubscriptionStore(openTestDB(t))

	tests := []struct {
		name string
		sub  *model.Subscription
	}{
		{"missing name", &model.Subscription{Currency: "USD", BillingCycle: model.CycleMonthly, Status: model.StatusActive}},
		{"bad currency", func() *model.Subscription { s := testSubscription("X"); s.Currency = "DOLLARS"; return s }()},
		{"negative amount", func() *model.Subscription { s := testSubscription("X"); s.Amount = -1; return s }()},
		{"bad cycle", func() *model.Subscription { s := testSubscription("X"); s.BillingCycle = "fortnightly"; return s }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := subs.Put(tt.sub); err == nil {
				t.Error("Put() should reject an invalid subscription")
			}
		})
	}
}

func TestSubscriptionStoreListSortedByName(t *testing.T) {
	subs := NewSubscriptionStore(openTestDB(t))

	for _, name := range []string{"Spotify", "Audible", "Netflix"} {
		if err := subs.Put(testSubscription(name)); err != nil {
			t.Fatalf("Put(%s) error = %v", name, err)
		}
	}

	list, err := subs.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"Audible", "Netflix", "Spotify"}
	if len(list) != len(want) {
		t.Fatalf("len(List()) = %d, want %d", len(list), len(want))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("list[%d].Name = %q, want %q", i, list[i].Name, name)
		}
	}
}

func TestSubscriptionStoreExportImportRoundTrip(t *testing.T) {
	db := openTestDB(t)
	subs := NewSubscriptionStore(db)

	if err := subs.Put(testSubscription("Netflix")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := subs.Put(testSubscription("Spotify")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := subs.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}

	other := NewSubscriptionStore(openTestDB(t))
	if err := other.ImportAll(data); err != nil {
		t.Fatalf("ImportAll() error = %v", err)
	}

	count, err := other.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestSubscriptionStoreExportEmptyIsArray(t *testing.T) {
	subs := NewSubscriptionStore(openTestDB(t))

	data, err := subs.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("ExportAll() = %s, want []", data)
	}
}

func TestSubscriptionStoreImportReplacesExisting(t *testing.T) {
	subs := NewSubscriptionStore(openTestDB(t))

	if err := subs.Put(testSubscription("Old")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	replacement, _ := json.Marshal([]*model.Subscription{testSubscription("New")})
	if err := subs.ImportAll(replacement); err != nil {
		t.Fatalf("ImportAll() error = %v", err)
	}

	list, err := subs.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name != "New" {
		t.Errorf("List() = %+v, want only the imported subscription", list)
	}
}

func TestSettingsStoreAutoBackupPolicyDefault(t *testing.T) {
	settings := NewSettingsStore(openTestDB(t))

	policy, err := settings.AutoBackupPolicy()
	if err != nil {
		t.Fatalf("AutoBackupPolicy() error = %v", err)
	}

	want := model.DefaultAutoBackupPolicy()
	if policy.Enabled != want.Enabled || policy.Frequency != want.Frequency {
		t.Errorf("default policy = %+v, want %+v", policy, want)
	}
}

func TestSettingsStoreAutoBackupPolicyRoundTrip(t *testing.T) {
	settings := NewSettingsStore(openTestDB(t))

	lastRun := time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)
	in := model.AutoBackupPolicy{
		Enabled:      true,
		Frequency:    model.FrequencyWeekly,
		LastRunAt:    &lastRun,
		CloudEnabled: true,
	}
	if err := settings.SetAutoBackupPolicy(in); err != nil {
		t.Fatalf("SetAutoBackupPolicy() error = %v", err)
	}

	out, err := settings.AutoBackupPolicy()
	if err != nil {
		t.Fatalf("AutoBackupPolicy() error = %v", err)
	}
	if out.Frequency != model.FrequencyWeekly || !out.CloudEnabled {
		t.Errorf("policy = %+v, want %+v", out, in)
	}
	if out.LastRunAt == nil || !out.LastRunAt.Equal(lastRun) {
		t.Errorf("LastRunAt = %v, want %v", out.LastRunAt, lastRun)
	}
}

func TestSettingsStoreGetMissing(t *testing.T) {
	settings := NewSettingsStore(openTestDB(t))

	var out string
	if err := settings.Get("nope", &out); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrSettingNotFound", err)
	}
}

func TestCacheStoreSetGetClear(t *testing.T) {
	cache := NewCacheStore(openTestDB(t))

	if err := cache.Set("rates", []byte(`{"USD":1}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	val, err := cache.Get("rates")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(val) != `{"USD":1}` {
		t.Errorf("Get() = %s, want stored value", val)
	}

	count, err := cache.EntryCount()
	if err != nil {
		t.Fatalf("EntryCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("EntryCount() = %d, want 1", count)
	}

	if err := cache.ClearAll(); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if _, err := cache.Get("rates"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get(cleared) error = %v, want ErrCacheMiss", err)
	}
}

func TestCacheStoreExportImportRoundTrip(t *testing.T) {
	cache := NewCacheStore(openTestDB(t))

	if err := cache.Set("a", []byte("1")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cache.Set("b", []byte("2")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	data, err := cache.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll() error = %v", err)
	}

	other := NewCacheStore(openTestDB(t))
	if err := other.ImportAll(data); err != nil {
		t.Fatalf("ImportAll() error = %v", err)
	}

	val, err := other.Get("b")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(val) != "2" {
		t.Errorf("Get(b) = %s, want 2", val)
	}
}

func TestStoresShareOneDatabaseWithoutCollisions(t *testing.T) {
	db := openTestDB(t)
	subs := NewSubscriptionStore(db)
	settings := NewSettingsStore(db)
	cache := NewCacheStore(db)

	if err := subs.Put(testSubscription("Netflix")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := settings.Set("theme", "dark"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cache.Set("rates", []byte("{}")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Clearing one prefix must not affect the others.
	if err := cache.ClearAll(); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}

	count, err := subs.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("subscription count after cache clear = %d, want 1", count)
	}

	var theme string
	if err := settings.Get("theme", &theme); err != nil || theme != "dark" {
		t.Errorf("setting after cache clear = %q/%v, want dark", theme, err)
	}
}
