// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/subtrackd/subtrackd/internal/model"
)

// ErrSubscriptionNotFound is returned when a subscription ID does not exist.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionStore persists subscription records in Badger.
type SubscriptionStore struct {
	db *DB
}

// NewSubscriptionStore creates a subscription store on the shared database.
func NewSubscriptionStore(db *DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// Put creates or updates a subscription. A missing ID is assigned.
func (s *SubscriptionStore) Put(sub *model.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if sub.ID == "" {
		sub.ID = uuid.New().String()
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}

	return s.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(subscriptionKeyPrefix+sub.ID), data)
	})
}

// Get retrieves a subscription by ID.
func (s *SubscriptionStore) Get(id string) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(subscriptionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSubscriptionNotFound
		}
		if err != nil {
			return fmt.Errorf("get subscription: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sub)
		})
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// List returns all subscriptions sorted by name.
func (s *SubscriptionStore) List() ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := s.db.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(subscriptionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sub model.Subscription
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sub)
			})
			if err != nil {
				return fmt.Errorf("decode subscription: %w", err)
			}
			subs = append(subs, &sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i].Name < subs[j].Name })
	return subs, nil
}

// Delete removes a subscription by ID.
func (s *SubscriptionStore) Delete(id string) error {
	return s.db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(subscriptionKeyPrefix + id))
	})
}

// ExportAll serializes every subscription as a JSON array.
func (s *SubscriptionStore) ExportAll() ([]byte, error) {
	subs, err := s.List()
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []*model.Subscription{}
	}
	data, err := json.Marshal(subs)
	if err != nil {
		return nil, fmt.Errorf("marshal subscriptions: %w", err)
	}
	return data, nil
}

// ImportAll replaces the store contents with the given JSON array.
func (s *SubscriptionStore) ImportAll(data []byte) error {
	var subs []*model.Subscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return fmt.Errorf("decode subscriptions payload: %w", err)
	}

	if err := s.ClearAll(); err != nil {
		return err
	}

	return s.db.db.Update(func(txn *badger.Txn) error {
		for _, sub := range subs {
			if sub.ID == "" {
				sub.ID = uuid.New().String()
			}
			raw, err := json.Marshal(sub)
			if err != nil {
				return fmt.Errorf("marshal subscription %s: %w", sub.ID, err)
			}
			if err := txn.Set([]byte(subscriptionKeyPrefix+sub.ID), raw); err != nil {
				return fmt.Errorf("set subscription %s: %w", sub.ID, err)
			}
		}
		return nil
	})
}

// ClearAll removes every subscription.
func (s *SubscriptionStore) ClearAll() error {
	return s.db.clearPrefix(subscriptionKeyPrefix)
}

// Count returns the number of stored subscriptions.
func (s *SubscriptionStore) Count() (int, error) {
	return s.db.countPrefix(subscriptionKeyPrefix)
}
