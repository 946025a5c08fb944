// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/subtrackd/subtrackd/internal/model"
)

// ErrSettingNotFound is returned when a setting key does not exist.
var ErrSettingNotFound = errors.New("setting not found")

// autoBackupPolicyKey is the settings key holding the auto-backup policy.
const autoBackupPolicyKey = "auto_backup_policy"

// SettingsStore persists application settings in Badger, including the
// auto-backup policy consumed by the scheduler.
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a settings store on the shared database.
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Set stores one setting value as JSON.
func (s *SettingsStore) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal setting %s: %w", key, err)
	}
	return s.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(settingKeyPrefix+key), data)
	})
}

// Get decodes one setting value into out.
func (s *SettingsStore) Get(key string, out any) error {
	return s.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(settingKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSettingNotFound
		}
		if err != nil {
			return fmt.Errorf("get setting %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

// AutoBackupPolicy returns the stored policy, or the default policy when
// none has been saved yet.
func (s *SettingsStore) AutoBackupPolicy() (model.AutoBackupPolicy, error) {
	var policy model.AutoBackupPolicy
	err := s.Get(autoBackupPolicyKey, &policy)
	if errors.Is(err, ErrSettingNotFound) {
		return model.DefaultAutoBackupPolicy(), nil
	}
	if err != nil {
		return policy, err
	}
	return policy, nil
}

// SetAutoBackupPolicy persists the auto-backup policy.
func (s *SettingsStore) SetAutoBackupPolicy(policy model.AutoBackupPolicy) error {
	return s.Set(autoBackupPolicyKey, policy)
}

// ExportAll serializes every setting into a JSON object keyed by setting
// name, with raw JSON values.
func (s *SettingsStore) ExportAll() ([]byte, error) {
	settings := make(map[string]json.RawMessage)
	err := s.db.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(settingKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())[len(settingKeyPrefix):]
			err := it.Item().Value(func(val []byte) error {
				settings[key] = append(json.RawMessage(nil), val...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return data, nil
}

// ImportAll replaces the store contents with the given JSON object.
func (s *SettingsStore) ImportAll(data []byte) error {
	var settings map[string]json.RawMessage
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("decode settings payload: %w", err)
	}

	if err := s.ClearAll(); err != nil {
		return err
	}

	return s.db.db.Update(func(txn *badger.Txn) error {
		for key, val := range settings {
			if err := txn.Set([]byte(settingKeyPrefix+key), val); err != nil {
				return fmt.Errorf("set setting %s: %w", key, err)
			}
		}
		return nil
	})
}

// ClearAll removes every setting.
func (s *SettingsStore) ClearAll() error {
	return s.db.clearPrefix(settingKeyPrefix)
}
