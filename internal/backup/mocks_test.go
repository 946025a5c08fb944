// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package backup

import (
	"context"
	"sync"
	"time"

	"github.com/subtrackd/subtrackd/internal/model"
)

// opLog records store operations in call order so tests can assert
// ordering across stores.
type opLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	l.entries = append(l.entries, op)
	l.mu.Unlock()
}

func (l *opLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

type fakeSubscriptions struct {
	log       *opLog
	data      []byte
	exportErr error
	importErr error
	clearErr  error
}

func (f *fakeSubscriptions) ExportAll() ([]byte, error) {
	f.log.add("subs.export")
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return f.data, nil
}

func (f *fakeSubscriptions) ImportAll(data []byte) error {
	f.log.add("subs.import")
	if f.importErr != nil {
		return f.importErr
	}
	f.data = data
	return nil
}

func (f *fakeSubscriptions) ClearAll() error {
	f.log.add("subs.clear")
	if f.clearErr != nil {
		return f.clearErr
	}
	f.data = []byte("[]")
	return nil
}

type fakeSettings struct {
	log       *opLog
	data      []byte
	policy    model.AutoBackupPolicy
	exportErr error
	importErr error
	policyErr error
}

func (f *fakeSettings) ExportAll() ([]byte, error) {
	f.log.add("settings.export")
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return f.data, nil
}

func (f *fakeSettings) ImportAll(data []byte) error {
	f.log.add("settings.import")
	if f.importErr != nil {
		return f.importErr
	}
	f.data = data
	return nil
}

func (f *fakeSettings) ClearAll() error {
	f.log.add("settings.clear")
	f.data = []byte("{}")
	return nil
}

func (f *fakeSettings) AutoBackupPolicy() (model.AutoBackupPolicy, error) {
	if f.policyErr != nil {
		return model.AutoBackupPolicy{}, f.policyErr
	}
	return f.policy, nil
}

func (f *fakeSettings) SetAutoBackupPolicy(policy model.AutoBackupPolicy) error {
	f.policy = policy
	return nil
}

type fakeCache struct {
	log       *opLog
	data      []byte
	exportErr error
	importErr error
	clearErr  error
}

func (f *fakeCache) ExportAll() ([]byte, error) {
	f.log.add("cache.export")
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return f.data, nil
}

func (f *fakeCache) ImportAll(data []byte) error {
	f.log.add("cache.import")
	if f.importErr != nil {
		return f.importErr
	}
	f.data = data
	return nil
}

func (f *fakeCache) ClearAll() error {
	f.log.add("cache.clear")
	if f.clearErr != nil {
		return f.clearErr
	}
	f.data = []byte("{}")
	return nil
}

func (f *fakeCache) EntryCount() (int, error) {
	return 0, nil
}

// newFakeStores returns a linked trio of fakes holding minimal valid
// payloads.
func newFakeStores() (*opLog, *fakeSubscriptions, *fakeSettings, *fakeCache) {
	log := &opLog{}
	subs := &fakeSubscriptions{log: log, data: []byte(`[{"id":"s1","name":"Netflix"}]`)}
	settings := &fakeSettings{log: log, data: []byte(`{}`), policy: model.DefaultAutoBackupPolicy()}
	cache := &fakeCache{log: log, data: []byte(`{}`)}
	return log, subs, settings, cache
}

// fixedClock returns a constant time.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// fakeRemote is an in-memory RemoteSyncClient.
type fakeRemote struct {
	mu          sync.Mutex
	uploadErr   error
	downloadErr error
	snapshot    *Snapshot
	uploads     int
	lastSync    *time.Time
}

func (r *fakeRemote) Upload(_ context.Context, snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uploadErr != nil {
		return r.uploadErr
	}
	r.uploads++
	r.snapshot = snapshot
	now := time.Now().UTC()
	r.lastSync = &now
	return nil
}

func (r *fakeRemote) Download(_ context.Context, _ string) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.downloadErr != nil {
		return nil, r.downloadErr
	}
	if r.snapshot == nil {
		return nil, ErrNotFound
	}
	return r.snapshot, nil
}

func (r *fakeRemote) LastSyncAt() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSync
}

func (r *fakeRemote) IsStale(maxAge time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSync == nil {
		return true
	}
	return time.Since(*r.lastSync) >= maxAge
}
