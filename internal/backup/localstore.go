// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
localstore.go - Local Backup Storage

Snapshots are written one file per snapshot into a dedicated backup
directory that no other component touches. Filenames embed a zero-padded
UTC timestamp so that lexical order equals chronological order:

	backup-20260824-153000.000-1a2b3c4d.json
	restorepoint-20260824-153144.210-5e6f7a8b.json

A small records.json index is maintained alongside the snapshot files so
listing is fast without reading every snapshot's header. Retention runs
synchronously after each successful write, separately per category:
ordinary backups and restore points are pruned under independent caps.
Pruning is best-effort — a failed delete is logged and retried implicitly
on the next write.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/subtrackd/subtrackd/internal/logging"
	"github.com/subtrackd/subtrackd/internal/metrics"
)

// filenameTimeLayout produces lexically sortable timestamps with
// millisecond resolution.
const filenameTimeLayout = "20060102-150405.000"

const (
	ordinaryFilePrefix     = "backup-"
	restorePointFilePrefix = "restorepoint-"
	indexFilename          = "records.json"
	snapshotFileExt        = ".json"
)

// LocalBackupStore persists snapshots on durable local storage and
// enforces the retention policy. It exclusively owns the backup directory.
type LocalBackupStore struct {
	dir              string
	maxOrdinary      int
	maxRestorePoints int

	mu      sync.RWMutex
	records []*BackupRecord
}

// NewLocalBackupStore opens the backup directory, creating it if needed,
// and loads the record index.
func NewLocalBackupStore(dir string, maxOrdinary, maxRestorePoints int) (*LocalBackupStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}

	s := &LocalBackupStore{
		dir:              dir,
		maxOrdinary:      maxOrdinary,
		maxRestorePoints: maxRestorePoints,
	}

	if err := s.loadIndex(); err != nil {
		// A missing or unreadable index is rebuilt from scratch; the
		// snapshot files themselves are the source of truth.
		logging.Warn().Err(err).Msg("backup index unreadable, rebuilding")
		s.records = nil
	}
	s.reconcileIndex()

	return s, nil
}

// Write serializes the snapshot, persists it under a timestamp-ordered
// filename, records it in the index, and prunes the snapshot's category.
func (s *LocalBackupStore) Write(snapshot *Snapshot) (*BackupRecord, error) {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	record := &BackupRecord{
		ID:             uuid.New().String(),
		CreatedAt:      snapshot.CreatedAt,
		Location:       LocationLocal,
		IsRestorePoint: snapshot.IsRestorePoint,
	}
	record.Filename = snapshotFilename(snapshot, record.ID)

	path := filepath.Join(s.dir, record.Filename)
	if err := writeFileAtomic(path, data); err != nil {
		return nil, fmt.Errorf("write snapshot %s: %w", record.Filename, err)
	}
	record.SizeBytes = int64(len(data))

	s.mu.Lock()
	s.records = append(s.records, record)
	s.pruneLocked(snapshot.IsRestorePoint)
	err = s.saveIndexLocked()
	s.mu.Unlock()

	if err != nil {
		// The snapshot file is already durable; a failed index save is
		// repaired by reconciliation on next startup.
		logging.Warn().Err(err).Msg("failed to save backup index")
	}

	metrics.BackupSizeBytes.Set(float64(record.SizeBytes))
	logging.Info().
		Str("file", record.Filename).
		Int64("size_bytes", record.SizeBytes).
		Bool("restore_point", record.IsRestorePoint).
		Msg("snapshot written")

	return record, nil
}

// List returns all records, newest first.
func (s *LocalBackupStore) List() []*BackupRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*BackupRecord, len(s.records))
	copy(out, s.records)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Read loads the snapshot for the given record ID. A record whose file
// has vanished is reported as lost via ErrNotFound, never a crash.
func (s *LocalBackupStore) Read(id string) (*Snapshot, error) {
	record, err := s.Record(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, record.Filename))
	if errors.Is(err, fs.ErrNotExist) {
		logging.Warn().Str("file", record.Filename).Msg("backup file lost")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, record.Filename)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", record.Filename, err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", record.Filename, err)
	}
	return &snapshot, nil
}

// Record returns the index entry for the given ID.
func (s *LocalBackupStore) Record(id string) (*BackupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Latest returns the newest record of the requested category, or
// ErrNotFound when none exist.
func (s *LocalBackupStore) Latest(restorePoint bool) (*BackupRecord, error) {
	for _, r := range s.List() {
		if r.IsRestorePoint == restorePoint {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// Delete removes a record and its snapshot file.
func (s *LocalBackupStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.records {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.dir, s.records[idx].Filename)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete snapshot %s: %w", s.records[idx].Filename, err)
	}

	s.records = append(s.records[:idx], s.records[idx+1:]...)
	return s.saveIndexLocked()
}

// TotalSizeBytes sums the sizes of all indexed snapshots.
func (s *LocalBackupStore) TotalSizeBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, r := range s.records {
		total += r.SizeBytes
	}
	return total
}

// pruneLocked enforces the retention cap for one category. Oldest records
// beyond the cap are deleted; a failed delete keeps the record so the next
// write retries it. Re-running with no excess is a no-op.
func (s *LocalBackupStore) pruneLocked(restorePoint bool) {
	limit := s.maxOrdinary
	if restorePoint {
		limit = s.maxRestorePoints
	}

	var category []*BackupRecord
	for _, r := range s.records {
		if r.IsRestorePoint == restorePoint {
			category = append(category, r)
		}
	}
	if len(category) <= limit {
		return
	}

	// Oldest first, so the excess head is deleted.
	sort.Slice(category, func(i, j int) bool {
		return category[i].CreatedAt.Before(category[j].CreatedAt)
	})

	for _, victim := range category[:len(category)-limit] {
		path := filepath.Join(s.dir, victim.Filename)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warn().Err(err).Str("file", victim.Filename).Msg("retention delete failed")
			continue
		}
		s.removeRecordLocked(victim.ID)
		metrics.RetentionDeletionsTotal.Inc()
		logging.Debug().Str("file", victim.Filename).Msg("pruned old backup")
	}
}

// removeRecordLocked drops a record from the in-memory index.
func (s *LocalBackupStore) removeRecordLocked(id string) {
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

// loadIndex reads records.json into memory.
func (s *LocalBackupStore) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFilename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, &s.records)
}

// saveIndexLocked writes records.json (must be called with mu held).
func (s *LocalBackupStore) saveIndexLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.dir, indexFilename), data)
}

// reconcileIndex drops index entries whose files are gone and logs them
// as lost, and indexes snapshot files missing from records.json.
func (s *LocalBackupStore) reconcileIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	indexed := make(map[string]bool)
	for _, r := range s.records {
		if _, err := os.Stat(filepath.Join(s.dir, r.Filename)); err != nil {
			logging.Warn().Str("file", r.Filename).Msg("indexed backup file lost")
			continue
		}
		indexed[r.Filename] = true
		kept = append(kept, r)
	}
	s.records = kept

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to scan backup directory")
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if indexed[name] || !isSnapshotFilename(name) {
			continue
		}
		record, err := s.recoverRecord(name)
		if err != nil {
			logging.Warn().Err(err).Str("file", name).Msg("unindexed backup file unreadable")
			continue
		}
		s.records = append(s.records, record)
		logging.Info().Str("file", name).Msg("recovered unindexed backup")
	}

	if err := s.saveIndexLocked(); err != nil {
		logging.Warn().Err(err).Msg("failed to save reconciled backup index")
	}
}

// recoverRecord rebuilds an index entry by reading a snapshot file.
func (s *LocalBackupStore) recoverRecord(filename string) (*BackupRecord, error) {
	path := filepath.Join(s.dir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}

	return &BackupRecord{
		ID:             uuid.New().String(),
		Filename:       filename,
		SizeBytes:      int64(len(data)),
		CreatedAt:      snapshot.CreatedAt,
		Location:       LocationLocal,
		IsRestorePoint: snapshot.IsRestorePoint,
	}, nil
}

// snapshotFilename derives the timestamp-ordered filename for a snapshot.
func snapshotFilename(snapshot *Snapshot, id string) string {
	prefix := ordinaryFilePrefix
	if snapshot.IsRestorePoint {
		prefix = restorePointFilePrefix
	}
	ts := snapshot.CreatedAt.UTC().Format(filenameTimeLayout)
	return prefix + ts + "-" + shortID(id) + snapshotFileExt
}

// shortID returns the first 8 characters of a UUID for filenames.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// isSnapshotFilename reports whether a directory entry is a snapshot file.
func isSnapshotFilename(name string) bool {
	if !strings.HasSuffix(name, snapshotFileExt) {
		return false
	}
	return strings.HasPrefix(name, ordinaryFilePrefix) || strings.HasPrefix(name, restorePointFilePrefix)
}

// writeFileAtomic writes data to a temp file and renames it into place so
// a crash mid-write never leaves a truncated snapshot behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup on error
		return err
	}
	return nil
}
