package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/notecam/fieldsync/internal/daemon"
	"github.com/notecam/fieldsync/internal/logging"
	"github.com/notecam/fieldsync/internal/spool"
	"github.com/notecam/fieldsync/internal/status"
	"github.com/notecam/fieldsync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon (foreground)",
	Long: `Run the full sync daemon in foreground mode.

The daemon will:
  1. Run a sync cycle immediately, then one per configured interval
  2. Watch the photo spool directory for captures to upload
  3. Serve sync status to UI clients over WebSocket
  4. Drain the retry queue as part of every cycle`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		sink := a.sink

		orch := daemon.New(a.store, a.remote, a.engine, a.processor, &daemon.Config{
			Interval: a.cfg.Sync.Interval,
			Logger:   logging.Component(sink, "sync"),
		})

		statusSrv := status.NewServer(&status.Config{
			Port:   a.cfg.Status.Port,
			Logger: logging.Component(sink, "status"),
		}, orch.Status)
		orch.AddNotifier(statusSrv)

		watcher, err := spool.New(a.cfg.Spool.Dir, a.engine.UploadPhoto, &spool.Config{
			DebounceInterval: a.cfg.Spool.Debounce,
			Logger:           logging.Component(sink, "spool"),
		})
		if err != nil {
			return err
		}

		if err := statusSrv.Start(); err != nil {
			return err
		}
		defer func() {
			if err := statusSrv.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}()

		fmt.Printf("%s Starting fieldsync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Store: %s\n", a.cfg.Store.Path)
		fmt.Printf("   Spool: %s\n", a.cfg.Spool.Dir)
		fmt.Printf("   Status: ws://localhost%s/ws\n", fmt.Sprintf(":%d", a.cfg.Status.Port))
		fmt.Printf("   Interval: %s\n", a.cfg.Sync.Interval)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return orch.Start(ctx) })
		g.Go(func() error { return watcher.Start(ctx) })

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
