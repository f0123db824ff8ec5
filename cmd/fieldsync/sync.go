package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/notecam/fieldsync/internal/daemon"
	"github.com/notecam/fieldsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full sync cycle",
	Long: `Run a single sync cycle against the remote backend.

The cycle:
  1. Checks connectivity (an unreachable remote aborts cleanly)
  2. Pulls remote changes and merges them last-write-wins
  3. Pushes local changes made since the last successful cycle
  4. Drains the retry queue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		orch := daemon.New(a.store, a.remote, a.engine, a.processor, nil)

		fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), a.cfg.Remote.URL)
		start := time.Now()

		rec, ran := orch.RunCycle(context.Background())
		if !ran {
			return fmt.Errorf("a sync cycle is already running")
		}
		if !rec.Success {
			fmt.Printf("%s Sync failed: %s\n", ui.RenderFail("✗"), rec.Error)
			return fmt.Errorf("sync failed")
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"),
			time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Items: %d\n", rec.ItemsSynced)
		fmt.Printf("   Retries pending: %d\n", rec.RetryCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
