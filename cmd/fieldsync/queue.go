package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/notecam/fieldsync/internal/model"
	"github.com/notecam/fieldsync/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and drain the retry queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued and failed items",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := context.Background()

		// A far-future cutoff lists items still inside their backoff
		// window as well.
		pending, err := a.store.PendingItems(ctx, time.Now().Add(24*365*time.Hour))
		if err != nil {
			return err
		}
		failed, err := a.store.FailedItems(ctx)
		if err != nil {
			return err
		}

		if len(pending) == 0 && len(failed) == 0 {
			fmt.Printf("%s Queue is empty\n", ui.RenderPass("✓"))
			return nil
		}

		if len(pending) > 0 {
			fmt.Printf("\n%s\n", ui.RenderHeader("Pending"))
			for _, item := range pending {
				printItem(item)
			}
		}
		if len(failed) > 0 {
			fmt.Printf("\n%s\n", ui.RenderHeader("Failed (manual resolution)"))
			for _, item := range failed {
				printItem(item)
			}
		}
		fmt.Println()
		return nil
	},
}

func printItem(item model.QueueItem) {
	fmt.Printf("  #%d %-7s attempts=%d enqueued=%s",
		item.ID, item.Type, item.Attempts,
		item.EnqueuedAt.Format("2006-01-02 15:04:05"))
	if item.LastError != "" {
		fmt.Printf("  %s", ui.RenderFaint(item.LastError))
	}
	fmt.Println()
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Drain due items against the remote now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.processor.Drain(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("%s Drain complete: %d delivered, %d retried, %d evicted\n",
			ui.RenderPass("✓"), report.Delivered, report.Retried, len(report.Evicted))
		for _, item := range report.Evicted {
			fmt.Printf("  %s #%d %s: %s\n", ui.RenderFail("✗"), item.ID, item.Type, item.LastError)
		}
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear-failed",
	Short: "Delete items that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := context.Background()
		failed, err := a.store.FailedItems(ctx)
		if err != nil {
			return err
		}
		for _, item := range failed {
			if err := a.store.DeleteItem(ctx, item.ID); err != nil {
				return err
			}
		}
		fmt.Printf("%s Removed %d failed items\n", ui.RenderPass("✓"), len(failed))
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDrainCmd)
	queueCmd.AddCommand(queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}
