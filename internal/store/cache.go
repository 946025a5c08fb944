// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// ErrCacheMiss is returned when a cache key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// CacheInfo describes the cache store contents.
type CacheInfo struct {
	EntryCount int `json:"entry_count"`
}

// CacheStore persists derived data (exchange rates, icon lookups,
// precomputed totals) in Badger. Contents are reproducible: clearing the
// cache is always safe.
type CacheStore struct {
	db *DB
}

// NewCacheStore creates a cache store on the shared database.
func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

// Set stores one cache entry.
func (c *CacheStore) Set(key string, value []byte) error {
	return c.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(cacheKeyPrefix+key), value)
	})
}

// Get retrieves one cache entry.
func (c *CacheStore) Get(key string) ([]byte, error) {
	var value []byte
	err := c.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache entry %s: %w", key, err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// ExportAll serializes every cache entry into a JSON object.
func (c *CacheStore) ExportAll() ([]byte, error) {
	entries := make(map[string][]byte)
	err := c.db.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(cacheKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())[len(cacheKeyPrefix):]
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			entries[key] = val
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entries: %w", err)
	}
	return data, nil
}

// ImportAll replaces the cache contents with the given JSON object.
func (c *CacheStore) ImportAll(data []byte) error {
	var entries map[string][]byte
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode cache payload: %w", err)
	}

	if err := c.ClearAll(); err != nil {
		return err
	}

	return c.db.db.Update(func(txn *badger.Txn) error {
		for key, val := range entries {
			if err := txn.Set([]byte(cacheKeyPrefix+key), val); err != nil {
				return fmt.Errorf("set cache entry %s: %w", key, err)
			}
		}
		return nil
	})
}

// ClearAll removes every cache entry.
func (c *CacheStore) ClearAll() error {
	return c.db.clearPrefix(cacheKeyPrefix)
}

// Info returns entry-count statistics for the cache.
func (c *CacheStore) Info() (CacheInfo, error) {
	count, err := c.db.countPrefix(cacheKeyPrefix)
	if err != nil {
		return CacheInfo{}, err
	}
	return CacheInfo{EntryCount: count}, nil
}

// EntryCount returns the number of cache entries.
func (c *CacheStore) EntryCount() (int, error) {
	info, err := c.Info()
	if err != nil {
		return 0, err
	}
	return info.EntryCount, nil
}
