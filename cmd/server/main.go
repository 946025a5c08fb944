// subtrackd - Subscription Tracker Backup and Sync Engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command server runs the subtrackd backend: the Badger-backed domain
// stores, the backup engine, the auto-backup scheduler, and the HTTP API,
// all under one supervisor tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subtrackd/subtrackd/internal/api"
	"github.com/subtrackd/subtrackd/internal/backup"
	"github.com/subtrackd/subtrackd/internal/config"
	"github.com/subtrackd/subtrackd/internal/logging"
	"github.com/subtrackd/subtrackd/internal/store"
	"github.com/subtrackd/subtrackd/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "subtrackd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("store close failed")
		}
	}()

	subs := store.NewSubscriptionStore(db)
	settings := store.NewSettingsStore(db)
	cache := store.NewCacheStore(db)

	clock := backup.SystemClock{}
	builder := backup.NewSnapshotBuilder(subs, settings, cache, clock)

	local, err := backup.NewLocalBackupStore(cfg.Backup.BackupDir, cfg.Backup.MaxLocal, cfg.Backup.MaxRestorePoints)
	if err != nil {
		return fmt.Errorf("open local backup store: %w", err)
	}

	var remote backup.RemoteSyncClient
	if cfg.Cloud.Enabled {
		remote = backup.NewS3SyncClient(backup.S3ClientConfig{
			Endpoint:  cfg.Cloud.Endpoint,
			Region:    cfg.Cloud.Region,
			Bucket:    cfg.Cloud.Bucket,
			AccessKey: cfg.Cloud.AccessKey,
			SecretKey: cfg.Cloud.SecretKey,
			Prefix:    cfg.Cloud.Prefix,
		})
	}

	restorer := backup.NewRestoreManager(builder, local, remote, subs, settings, cache)
	facade := backup.NewFacade(cfg.Backup, cfg.Cloud, builder, local, remote,
		restorer, backup.NewConverter(), clock, subs, settings, cache)

	handler := api.NewHandler(facade, subs, settings, cache)
	server := api.NewServer(cfg.Server, api.NewRouter(cfg.Server, handler))

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if cfg.Backup.Enabled {
		scheduler := backup.NewScheduler(settings, facade, backup.NopLifecycle{}, clock)
		tree.AddEngineService(scheduler)
	}
	tree.AddAPIService(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Int("port", cfg.Server.Port).
		Bool("cloud", cfg.Cloud.Enabled).
		Msg("subtrackd starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("subtrackd stopped")
	return nil
}
