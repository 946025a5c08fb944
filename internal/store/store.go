// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/subtrackd/subtrackd/internal/logging"
)

// Key prefixes for Badger storage. Each store owns one prefix.
const (
	subscriptionKeyPrefix = "sub:"
	settingKeyPrefix      = "set:"
	cacheKeyPrefix        = "cache:"
)

// DB wraps the shared Badger database used by all domain stores.
type DB struct {
	db *badger.DB
}

// Open opens (or creates) the Badger database under dataDir.
func Open(dataDir string) (*DB, error) {
	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil // Badger's own logger is noisy; we log lifecycle events ourselves

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dataDir, err)
	}

	logging.Info().Str("dir", dataDir).Msg("domain store opened")
	return &DB{db: db}, nil
}

// Close closes the underlying Badger database.
func (d *DB) Close() error {
	return d.db.Close()
}

// clearPrefix deletes all keys under the given prefix in one transaction.
func (d *DB) clearPrefix(prefix string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			key := it.Item().KeyCopy(nil)
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// countPrefix counts the keys under the given prefix.
func (d *DB) countPrefix(prefix string) (int, error) {
	count := 0
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
