package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solpulse/engine/internal/conviction"
	"github.com/solpulse/engine/internal/discovery"
	"github.com/solpulse/engine/internal/model"
	"github.com/solpulse/engine/pkg/httputil"
)

// walletsCmd groups wallet maintenance commands
var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "Tracked wallet maintenance",
}

var walletsTopCmd = &cobra.Command{
	Use:   "top",
	Short: "List tracked wallets by conviction score",
	RunE:  runWalletsTop,
}

var walletsScoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute conviction scores for all active wallets",
	RunE:  runWalletsScore,
}

// discoverCmd runs one leaderboard discovery pass
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan trader leaderboards for new wallets to track",
	Long: `Scans trending tokens on public leaderboards, scrapes their
top traders and registers every wallet clearing the tracking
thresholds.

Example:
  go run ./cmd/pulse discover`,
	RunE: runDiscover,
}

var (
	walletsTopLimit    int
	walletsTopMinScore float64
)

func init() {
	rootCmd.AddCommand(walletsCmd)
	rootCmd.AddCommand(discoverCmd)
	walletsCmd.AddCommand(walletsTopCmd)
	walletsCmd.AddCommand(walletsScoreCmd)

	walletsTopCmd.Flags().IntVar(&walletsTopLimit, "limit", 20, "number of wallets to show")
	walletsTopCmd.Flags().Float64Var(&walletsTopMinScore, "min-score", 0, "minimum conviction score")
}

func runWalletsTop(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	calculator := conviction.NewCalculator(app.store, app.log)
	wallets, err := calculator.TopWallets(context.Background(), walletsTopLimit, walletsTopMinScore)
	if err != nil {
		return err
	}

	if len(wallets) == 0 {
		fmt.Println("No tracked wallets yet.")
		return nil
	}

	fmt.Printf("%-4s %-12s %-7s %-8s %-8s %-10s\n", "#", "Wallet", "Score", "WR%", "Trades", "PnL (SOL)")
	for i, w := range wallets {
		fmt.Printf("%-4d %-12s %-7.1f %-8.1f %-8d %-10.2f\n",
			i+1, model.ShortAddress(w.Address), w.ConvictionScore, w.WinRate, w.TotalTrades, w.PnLTotalSOL)
	}
	return nil
}

func runWalletsScore(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Conviction Rescore ===")

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	calculator := conviction.NewCalculator(app.store, app.log)
	updated, err := calculator.UpdateAllScores(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Updated %d wallet scores.\n", updated)
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Wallet Discovery ===")

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	httpClient := httputil.New(app.log)
	scraper := discovery.NewScraper(httpClient, app.log)
	screener := discovery.NewDexscreenerClient(httpClient, app.log)
	service := discovery.NewService(scraper, screener, app.store.Wallets, app.cfg.Wallets, app.log)

	registered, err := service.Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Registered or refreshed %d wallets.\n", registered)
	return nil
}
