// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api exposes the subscription CRUD and backup engine operations
// over HTTP. Every endpoint returns the APIResponse envelope; engine
// errors are mapped onto stable error codes by respondEngineError.
package api

import (
	"net/http"

	"github.com/subtrackd/subtrackd/internal/backup"
	"github.com/subtrackd/subtrackd/internal/store"
)

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	facade        *backup.Facade
	subscriptions *store.SubscriptionStore
	settings      *store.SettingsStore
	cache         *store.CacheStore
}

// NewHandler creates the shared endpoint handler.
func NewHandler(facade *backup.Facade, subs *store.SubscriptionStore,
	settings *store.SettingsStore, cache *store.CacheStore) *Handler {
	return &Handler{
		facade:        facade,
		subscriptions: subs,
		settings:      settings,
		cache:         cache,
	}
}

// handleHealth is the liveness probe.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats returns store-level aggregates.
func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	subCount, err := h.subscriptions.Count()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	cacheInfo, err := h.cache.Info()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]any{
		"subscriptions": subCount,
		"cache_entries": cacheInfo.EntryCount,
		"backups":       h.facade.Status(),
	})
}
