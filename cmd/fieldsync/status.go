package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/notecam/fieldsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync status",
	Long: `Display the current state of the local store and sync machinery.

Shows:
  - Store file location and size
  - Collection counts (users, zones, reports)
  - Queue depth and last sync outcome
  - Cumulative sync statistics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		info, err := os.Stat(a.cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to stat store: %w", err)
		}

		users := a.store.Users()
		zones := a.store.Areas()
		reports := a.store.Reports()
		stats := a.store.Stats()
		last := a.store.LastSyncTime()

		needsReview := 0
		for _, z := range zones {
			if z.NeedsReview {
				needsReview++
			}
		}
		pendingReports := 0
		for _, r := range reports {
			if !r.RemoteSynced {
				pendingReports++
			}
		}

		qLen, err := a.store.QueueLength(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("\n%s Fieldsync Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Store: %s (%s)\n", a.cfg.Store.Path, formatSize(info.Size()))
		fmt.Printf("Users: %d\n", len(users))
		fmt.Printf("Zones: %d", len(zones))
		if needsReview > 0 {
			fmt.Printf("  %s", ui.RenderWarn(fmt.Sprintf("(%d need review)", needsReview)))
		}
		fmt.Println()
		fmt.Printf("Reports: %d", len(reports))
		if pendingReports > 0 {
			fmt.Printf("  %s", ui.RenderFaint(fmt.Sprintf("(%d not yet synced)", pendingReports)))
		}
		fmt.Println()
		fmt.Printf("Queue: %d pending\n", qLen)

		fmt.Printf("\n%s\n", ui.RenderHeader("Sync"))
		if last == nil {
			fmt.Printf("Last sync: %s\n", ui.RenderFaint("never"))
		} else {
			fmt.Printf("Last sync: %s (%s ago)\n",
				last.Format("2006-01-02 15:04:05"),
				time.Since(*last).Round(time.Second))
		}
		fmt.Printf("Cycles: %d total, %d ok, %d failed\n",
			stats.TotalSyncs, stats.SuccessfulSyncs, stats.FailedSyncs)
		fmt.Printf("Items synced: %d\n", stats.TotalDataSynced)
		if stats.LastError != "" {
			fmt.Printf("Last error: %s\n", ui.RenderFail(stats.LastError))
		}
		fmt.Println()
		return nil
	},
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
