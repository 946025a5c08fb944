// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/subtrackd/subtrackd/internal/config"
)

// NewRouter builds the chi router with the full middleware stack and all
// API routes.
func NewRouter(cfg config.ServerConfig, h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", h.handleListSubscriptions)
			r.Post("/", h.handleCreateSubscription)
			r.Get("/{id}", h.handleGetSubscription)
			r.Put("/{id}", h.handleUpdateSubscription)
			r.Delete("/{id}", h.handleDeleteSubscription)
		})

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", h.handleListBackups)
			r.Post("/", h.handleCreateBackup)
			r.Delete("/{id}", h.handleDeleteBackup)
			r.Get("/status", h.handleStatus)
			r.Get("/progress", h.handleProgress)
		})

		r.Post("/restore", h.handleRestore)
		r.Post("/export", h.handleExport)
		r.Post("/import", h.handleImport)

		r.Route("/settings", func(r chi.Router) {
			r.Get("/auto-backup", h.handleGetAutoBackupPolicy)
			r.Put("/auto-backup", h.handleSetAutoBackupPolicy)
		})

		r.Delete("/data", h.handleClearAllData)
		r.Delete("/cache", h.handleClearCache)

		r.Get("/stats", h.handleStats)
	})

	return r
}
