// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/subtrackd/subtrackd/internal/backup"
	"github.com/subtrackd/subtrackd/internal/model"
)

// maxImportBytes bounds uploaded import files.
const maxImportBytes = 32 << 20 // 32 MiB

// handleCreateBackup runs a manual backup. The destination query
// parameter selects local, cloud, or both; default local.
func (h *Handler) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	destination := backup.Destination(r.URL.Query().Get("destination"))
	switch destination {
	case backup.DestinationLocal, backup.DestinationCloud, backup.DestinationBoth:
	case "":
		destination = backup.DestinationLocal
	default:
		respondError(w, http.StatusBadRequest, "INVALID_DESTINATION",
			"destination must be local, cloud, or both", nil)
		return
	}

	outcome, err := h.facade.PerformBackup(r.Context(), backup.TriggerManual, destination)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusCreated, outcome)
}

// handleListBackups returns local backup records, newest first.
func (h *Handler) handleListBackups(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, h.facade.ListBackups())
}

// handleDeleteBackup removes one local backup.
func (h *Handler) handleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.facade.DeleteBackup(id); err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"deleted": id})
}

// handleRestore restores from a stored snapshot. source selects local or
// cloud (default local); an empty id restores the newest snapshot.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source backup.Location `json:"source"`
		ID     string          `json:"id"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
			return
		}
	}
	if req.Source == "" {
		req.Source = backup.LocationLocal
	}
	if req.Source != backup.LocationLocal && req.Source != backup.LocationCloud {
		respondError(w, http.StatusBadRequest, "INVALID_SOURCE", "source must be local or cloud", nil)
		return
	}

	result, err := h.facade.RestoreFromBackup(r.Context(), req.Source, req.ID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, result)
}

// handleStatus returns the recomputed engine-wide sync status.
func (h *Handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, h.facade.Status())
}

// handleProgress returns the current operation phase and percent.
func (h *Handler) handleProgress(w http.ResponseWriter, _ *http.Request) {
	phase, percent, lastErr := h.facade.Progress()
	respondSuccess(w, http.StatusOK, map[string]any{
		"phase":      phase,
		"percent":    percent,
		"last_error": lastErr,
	})
}

// handleExport writes a fresh export file and returns its path.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, ok := parseFormat(w, r)
	if !ok {
		return
	}

	path, err := h.facade.ExportData(format)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusCreated, map[string]string{"path": path, "format": string(format)})
}

// handleImport applies an uploaded export file through the restore path.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	format, ok := parseFormat(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "READ_FAILED", "Could not read request body", err)
		return
	}
	if len(data) > maxImportBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			"Import file exceeds the size limit", nil)
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "EMPTY_BODY", "Import file is empty", nil)
		return
	}

	result, err := h.facade.ImportData(r.Context(), data, format)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, result)
}

// handleClearAllData wipes every domain store after taking a restore point.
func (h *Handler) handleClearAllData(w http.ResponseWriter, _ *http.Request) {
	if err := h.facade.ClearAllData(); err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"cleared": "all"})
}

// handleClearCache wipes the derived-data cache.
func (h *Handler) handleClearCache(w http.ResponseWriter, _ *http.Request) {
	if err := h.facade.ClearCache(); err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"cleared": "cache"})
}

// handleGetAutoBackupPolicy returns the current auto-backup policy.
func (h *Handler) handleGetAutoBackupPolicy(w http.ResponseWriter, _ *http.Request) {
	policy, err := h.settings.AutoBackupPolicy()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, policy)
}

// handleSetAutoBackupPolicy replaces the auto-backup policy. LastRunAt is
// preserved from the stored policy; clients do not own it.
func (h *Handler) handleSetAutoBackupPolicy(w http.ResponseWriter, r *http.Request) {
	var req model.AutoBackupPolicy
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err)
		return
	}
	if req.Frequency.IntervalHours() == 0 && req.Frequency != model.FrequencyManual {
		respondError(w, http.StatusBadRequest, "INVALID_FREQUENCY",
			"frequency must be hourly, daily, weekly, or manual", nil)
		return
	}

	current, err := h.settings.AutoBackupPolicy()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	req.LastRunAt = current.LastRunAt

	if err := h.settings.SetAutoBackupPolicy(req); err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, req)
}

// parseFormat reads the format query parameter (default json).
func parseFormat(w http.ResponseWriter, r *http.Request) (backup.Format, bool) {
	format := backup.Format(r.URL.Query().Get("format"))
	switch format {
	case backup.FormatJSON, backup.FormatCSV:
		return format, true
	case "":
		return backup.FormatJSON, true
	default:
		respondError(w, http.StatusBadRequest, "INVALID_FORMAT", "format must be json or csv", nil)
		return "", false
	}
}
