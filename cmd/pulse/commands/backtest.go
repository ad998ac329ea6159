package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/solpulse/engine/internal/backtest"
	"github.com/solpulse/engine/internal/model"
)

// backtestCmd replays historical alerts against a trading strategy
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical alerts against a strategy",
	Long: `Replays alerts recorded in the given period and simulates
entering each one with a fixed position size.

Example:
  go run ./cmd/pulse backtest --from 2026-07-01 --to 2026-08-01
  go run ./cmd/pulse backtest --from 2026-07-01 --strategy take_profit --take-profit 50
  go run ./cmd/pulse backtest --from 2026-07-01 --types high_conviction,cluster_buy --skip-rugged`,
	RunE: runBacktest,
}

var (
	backtestFrom       string
	backtestTo         string
	backtestTypes      string
	backtestStrategy   string
	backtestHold       time.Duration
	backtestTakeProfit float64
	backtestPosition   float64
	backtestMinWinRate float64
	backtestSkipRugged bool
	backtestSeed       int64
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "start date (YYYY-MM-DD, required)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "end date (YYYY-MM-DD, default: today)")
	backtestCmd.Flags().StringVar(&backtestTypes, "types", "", "signal types, comma separated (default: all)")
	backtestCmd.Flags().StringVar(&backtestStrategy, "strategy", "fixed_time", "exit strategy (fixed_time|take_profit)")
	backtestCmd.Flags().DurationVar(&backtestHold, "hold", time.Hour, "holding duration before fixed-time exit")
	backtestCmd.Flags().Float64Var(&backtestTakeProfit, "take-profit", 50, "take profit target (%)")
	backtestCmd.Flags().Float64Var(&backtestPosition, "position", 1.0, "position size (SOL)")
	backtestCmd.Flags().Float64Var(&backtestMinWinRate, "min-win-rate", 0, "skip alerts below this trigger win rate")
	backtestCmd.Flags().BoolVar(&backtestSkipRugged, "skip-rugged", false, "skip tokens flagged as rugged")
	backtestCmd.Flags().Int64Var(&backtestSeed, "seed", 42, "seed for the stochastic price fallback")

	backtestCmd.MarkFlagRequired("from")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	fmt.Println("=== SolPulse Backtest ===")

	startDate, err := time.Parse("2006-01-02", backtestFrom)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}

	endDate := time.Now()
	if backtestTo != "" {
		endDate, err = time.Parse("2006-01-02", backtestTo)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
	}

	signalTypes, err := parseSignalTypes(backtestTypes)
	if err != nil {
		return err
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	engine := backtest.NewEngine(app.store, app.log)

	result, err := engine.Run(context.Background(), backtest.Config{
		StartDate:        startDate,
		EndDate:          endDate,
		SignalTypes:      signalTypes,
		MinWalletWinRate: backtestMinWinRate,
		PositionSizeSOL:  backtestPosition,
		Strategy:         backtest.ExitStrategy(backtestStrategy),
		HoldDuration:     backtestHold,
		TakeProfitPct:    backtestTakeProfit,
		SkipRugged:       backtestSkipRugged,
		Seed:             backtestSeed,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(engine.Report(result))
	return nil
}

func parseSignalTypes(s string) ([]model.SignalType, error) {
	if s == "" {
		return nil, nil
	}

	valid := make(map[model.SignalType]bool)
	for _, t := range model.AllSignalTypes() {
		valid[t] = true
	}

	var types []model.SignalType
	for _, part := range strings.Split(s, ",") {
		t := model.SignalType(strings.TrimSpace(part))
		if !valid[t] {
			return nil, fmt.Errorf("unknown signal type %q", t)
		}
		types = append(types, t)
	}
	return types, nil
}
