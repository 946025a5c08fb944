// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the subscription domain records shared by the
// stores, the backup engine, and the import/export converter.
package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// BillingCycle is how often a subscription renews.
type BillingCycle string

const (
	CycleWeekly  BillingCycle = "weekly"
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Valid reports whether the cycle is one of the known values.
func (c BillingCycle) Valid() bool {
	switch c {
	case CycleWeekly, CycleMonthly, CycleYearly:
		return true
	}
	return false
}

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusPaused    SubscriptionStatus = "paused"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// Valid reports whether the status is one of the known values.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

// Subscription is one recurring payment tracked by the user.
type Subscription struct {
	ID              string             `json:"id"`
	Name            string             `json:"name" validate:"required,min=1,max=200"`
	Category        string             `json:"category" validate:"max=100"`
	Amount          float64            `json:"amount" validate:"gte=0"`
	Currency        string             `json:"currency" validate:"required,len=3"`
	BillingCycle    BillingCycle       `json:"billing_cycle" validate:"oneof=weekly monthly yearly"`
	NextPaymentDate time.Time          `json:"next_payment_date"`
	Status          SubscriptionStatus `json:"status" validate:"oneof=active paused cancelled"`
	Notes           string             `json:"notes,omitempty" validate:"max=2000"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// validate is the shared validator instance. validator.Validate caches
// struct metadata, so a single instance is the recommended usage.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the subscription fields against their constraints.
func (s *Subscription) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid subscription %q: %w", s.Name, err)
	}
	return nil
}

// AutoBackupFrequency controls how often automatic backups run.
type AutoBackupFrequency string

const (
	FrequencyHourly AutoBackupFrequency = "hourly"
	FrequencyDaily  AutoBackupFrequency = "daily"
	FrequencyWeekly AutoBackupFrequency = "weekly"
	FrequencyManual AutoBackupFrequency = "manual"
)

// IntervalHours returns the backup interval for a frequency, or 0 for
// manual (never automatic).
func (f AutoBackupFrequency) IntervalHours() int {
	switch f {
	case FrequencyHourly:
		return 1
	case FrequencyDaily:
		return 24
	case FrequencyWeekly:
		return 168
	default:
		return 0
	}
}

// AutoBackupPolicy is the user-facing automatic backup configuration.
// It is owned by the settings store; the scheduler reads it and writes
// back LastRunAt after each successful automatic backup.
type AutoBackupPolicy struct {
	Enabled      bool                `json:"enabled"`
	Frequency    AutoBackupFrequency `json:"frequency"`
	LastRunAt    *time.Time          `json:"last_run_at,omitempty"`
	CloudEnabled bool                `json:"cloud_enabled"`
}

// DefaultAutoBackupPolicy returns the policy applied on first run.
func DefaultAutoBackupPolicy() AutoBackupPolicy {
	return AutoBackupPolicy{
		Enabled:      true,
		Frequency:    FrequencyDaily,
		CloudEnabled: false,
	}
}
