// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/subtrackd/subtrackd/internal/model"
)

// handleListSubscriptions returns all subscriptions sorted by name.
func (h *Handler) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	subs, err := h.subscriptions.List()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, subs)
}

// handleGetSubscription returns one subscription by id.
func (h *Handler) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, sub)
}

// handleCreateSubscription creates a subscription from the request body.
func (h *Handler) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var sub model.Subscription
	if err := decodeBody(r, &sub); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}

	now := time.Now().UTC()
	sub.ID = ""
	sub.CreatedAt = now
	sub.UpdatedAt = now

	if err := h.subscriptions.Put(&sub); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), err)
		return
	}
	respondSuccess(w, http.StatusCreated, &sub)
}

// handleUpdateSubscription replaces an existing subscription.
func (h *Handler) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.subscriptions.Get(id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	var sub model.Subscription
	if err := decodeBody(r, &sub); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}

	sub.ID = id
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now().UTC()

	if err := h.subscriptions.Put(&sub); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), err)
		return
	}
	respondSuccess(w, http.StatusOK, &sub)
}

// handleDeleteSubscription removes one subscription.
func (h *Handler) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.subscriptions.Delete(id); err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"deleted": id})
}
