package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solpulse/engine/internal/metadata"
	"github.com/solpulse/engine/internal/outcome"
	"github.com/solpulse/engine/pkg/httputil"
	"github.com/solpulse/engine/pkg/redis"
)

// outcomesCmd runs one outcome check batch outside the schedule
var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "Check pending alert outcomes now",
	RunE:  runOutcomes,
}

// statsCmd prints the alert performance report
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show alert performance over a trailing window",
	Long: `Aggregates resolved alert outcomes into win rates, overall
and per signal type.

Example:
  go run ./cmd/pulse stats
  go run ./cmd/pulse stats --days 30`,
	RunE: runStats,
}

var statsDays int

func init() {
	rootCmd.AddCommand(outcomesCmd)
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().IntVar(&statsDays, "days", 7, "trailing window in days")
}

func newTracker(app *app) *outcome.Tracker {
	httpClient := httputil.New(app.log)
	cache := redis.NewCache(app.redis, "solpulse")
	meta := metadata.NewService(app.cfg.RPC, httpClient, cache, app.log)
	return outcome.NewTracker(app.store, meta, app.log)
}

func runOutcomes(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Outcome Check ===")

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	outcomes, err := newTracker(app).CheckPendingAlerts(context.Background())
	if err != nil {
		return err
	}

	if len(outcomes) == 0 {
		fmt.Println("No alerts due for an outcome check.")
		return nil
	}

	for _, o := range outcomes {
		fmt.Printf("alert %-6d %-8s %+8.1f%%  (age %s)\n",
			o.AlertID, o.Status, o.ReturnPct, o.AlertAge.Truncate(time.Minute))
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	tracker := newTracker(app)
	window := time.Duration(statsDays) * 24 * time.Hour

	stats, err := tracker.GetPerformanceStats(context.Background(), window)
	if err != nil {
		return err
	}

	fmt.Println(tracker.Report(stats, window))
	return nil
}
