package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/notecam/fieldsync/internal/config"
	"github.com/notecam/fieldsync/internal/logging"
	"github.com/notecam/fieldsync/internal/queue"
	"github.com/notecam/fieldsync/internal/reconcile"
	"github.com/notecam/fieldsync/internal/remote"
	"github.com/notecam/fieldsync/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first sync for NoteCam field reports",
	Long: `fieldsync keeps a local store of users, zones and field reports and
reconciles it with the remote backend whenever connectivity allows.

Captured work is always persisted locally first. Failed remote writes
land in a durable retry queue and are drained on later sync cycles, so
nothing recorded in the field is ever lost to a dead connection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// app bundles the wired subsystems behind every command.
type app struct {
	cfg       config.Config
	sink      io.Writer
	store     *store.Store
	remote    *remote.Client
	engine    *reconcile.Engine
	processor *queue.Processor
}

// newApp loads config and opens the local store. When needRemote is
// true, the remote endpoint must be configured; local-only commands
// pass false and get a client that will simply fail closed if used.
func newApp(needRemote bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if needRemote {
		if err := cfg.RequireRemote(); err != nil {
			return nil, err
		}
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	sink := logging.Sink(logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	client := remote.NewClient(remote.Config{
		BaseURL: cfg.Remote.URL,
		APIKey:  cfg.Remote.APIKey,
		Bucket:  cfg.Remote.Bucket,
		Timeout: cfg.Remote.Timeout,
		Logger:  logging.Component(sink, "remote"),
	})

	proc := queue.New(st, client, queue.Config{
		MaxAttempts: cfg.Sync.MaxRetries,
		BackoffBase: cfg.Sync.BackoffBase,
		BackoffCap:  cfg.Sync.BackoffCap,
		Logger:      logging.Component(sink, "queue"),
	})

	eng := reconcile.New(st, client, proc, logging.Component(sink, "reconcile"))

	return &app{
		cfg:       cfg,
		sink:      sink,
		store:     st,
		remote:    client,
		engine:    eng,
		processor: proc,
	}, nil
}

// close releases the local store.
func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Warning: error closing store: %v\n", err)
	}
}

// dataDir returns the directory holding the local store, for display.
func (a *app) dataDir() string {
	return filepath.Dir(a.cfg.Store.Path)
}
