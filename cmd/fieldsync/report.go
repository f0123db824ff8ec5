package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/notecam/fieldsync/internal/model"
	"github.com/notecam/fieldsync/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Submit and complete field reports",
}

var reportSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit phase one of a report (before data)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		employee, _ := cmd.Flags().GetString("employee")
		areaCode, _ := cmd.Flags().GetString("area")
		numberBefore, _ := cmd.Flags().GetInt("before")
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")

		users := a.store.Users()
		u, ok := users[employee]
		if !ok {
			return fmt.Errorf("unknown employee %q", employee)
		}

		var zone *model.Zone
		for _, z := range a.store.Areas() {
			if z.Code == areaCode {
				zone = &z
				break
			}
		}
		if zone == nil {
			return fmt.Errorf("unknown zone code %q", areaCode)
		}

		r := model.Report{
			Employee:     u.Username,
			EmployeeName: u.Name,
			Area:         zone.Name,
			AreaCode:     zone.Code,
			NumberBefore: numberBefore,
			Location: model.Location{
				Lat:       lat,
				Lng:       lng,
				Timestamp: time.Now(),
			},
		}

		created, err := a.engine.SubmitReport(context.Background(), r)
		if err != nil {
			return err
		}

		marker := ui.RenderPass("✓")
		note := "synced"
		if !created.RemoteSynced {
			marker = ui.RenderWarn("⚠")
			note = "queued for sync"
		}
		fmt.Printf("%s Report %d submitted (%s)\n", marker, created.ID, note)
		return nil
	},
}

var reportCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Complete a report (after data)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid report id %q", args[0])
		}
		numberAfter, _ := cmd.Flags().GetInt("after")

		done, err := a.engine.CompleteReport(context.Background(), id, numberAfter, nil)
		if err != nil {
			return err
		}

		marker := ui.RenderPass("✓")
		note := "synced"
		if !done.RemoteSynced {
			marker = ui.RenderWarn("⚠")
			note = "queued for sync"
		}
		fmt.Printf("%s Report %d complete (%s)\n", marker, done.ID, note)
		return nil
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		reports := a.store.Reports()
		if len(reports) == 0 {
			fmt.Println("No reports")
			return nil
		}

		fmt.Printf("\n%s\n", ui.RenderHeader("Reports"))
		for _, r := range reports {
			sync := ui.RenderPass("✓")
			if !r.RemoteSynced {
				sync = ui.RenderWarn("⚠")
			}
			after := "-"
			if r.NumberAfter != nil {
				after = strconv.Itoa(*r.NumberAfter)
			}
			fmt.Printf("  %s %-14d %-10s %-12s before=%d after=%s %s\n",
				sync, r.ID, r.AreaCode, r.Status, r.NumberBefore, after,
				ui.RenderFaint(r.CreatedAt.Format("2006-01-02 15:04")))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	reportSubmitCmd.Flags().String("employee", "", "reporting employee username")
	reportSubmitCmd.Flags().String("area", "", "zone code")
	reportSubmitCmd.Flags().Int("before", 0, "before count (0-8)")
	reportSubmitCmd.Flags().Float64("lat", 0, "latitude")
	reportSubmitCmd.Flags().Float64("lng", 0, "longitude")
	_ = reportSubmitCmd.MarkFlagRequired("employee")
	_ = reportSubmitCmd.MarkFlagRequired("area")

	reportCompleteCmd.Flags().Int("after", 0, "after count (0-8)")

	reportCmd.AddCommand(reportSubmitCmd, reportCompleteCmd, reportListCmd)
	rootCmd.AddCommand(reportCmd)
}
