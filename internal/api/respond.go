// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/subtrackd/subtrackd/internal/backup"
	"github.com/subtrackd/subtrackd/internal/logging"
	"github.com/subtrackd/subtrackd/internal/store"
)

// APIResponse is the uniform JSON envelope for every endpoint.
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data,omitempty"`
	Error    *APIError `json:"error,omitempty"`
	Metadata Metadata  `json:"metadata"`
}

// APIError carries a machine-readable code and a human-readable message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata is the per-response envelope metadata.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, response *APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}

// respondSuccess wraps data in the success envelope.
func respondSuccess(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, &APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

// respondError sends an error envelope and logs the underlying cause.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Err(err).Msg("api error")
	}
	respondJSON(w, status, &APIResponse{
		Status:   "error",
		Error:    &APIError{Code: code, Message: message},
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	})
}

// respondEngineError maps the backup engine's error taxonomy onto HTTP
// status codes and stable error codes.
func respondEngineError(w http.ResponseWriter, err error) {
	var formatErr *backup.ImportFormatError
	switch {
	case errors.Is(err, backup.ErrOperationInProgress):
		respondError(w, http.StatusConflict, "OPERATION_IN_PROGRESS",
			"Another backup or restore operation is already running", err)
	case errors.Is(err, backup.ErrNotFound), errors.Is(err, store.ErrSubscriptionNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "The requested resource does not exist", err)
	case errors.Is(err, backup.ErrInvalidSnapshot):
		respondError(w, http.StatusUnprocessableEntity, "INVALID_SNAPSHOT",
			"The snapshot failed validation and was not applied", err)
	case errors.As(err, &formatErr):
		respondError(w, http.StatusUnprocessableEntity, "INVALID_FORMAT", formatErr.Error(), err)
	case errors.Is(err, backup.ErrSafetyPoint):
		respondError(w, http.StatusInternalServerError, "SAFETY_POINT_FAILED",
			"Could not create a pre-restore safety backup; no data was modified", err)
	case errors.Is(err, backup.ErrNetwork):
		respondError(w, http.StatusBadGateway, "CLOUD_UNREACHABLE", "The cloud store could not be reached", err)
	case errors.Is(err, backup.ErrRemoteRejected):
		respondError(w, http.StatusBadGateway, "CLOUD_REJECTED", "The cloud store rejected the request", err)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred", err)
	}
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close() //nolint:errcheck // Best effort cleanup
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
