package commands

import (
	"github.com/spf13/cobra"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "SolPulse - smart wallet signal engine for Solana memecoins",
	Long: `SolPulse tracks high-performing wallets, detects coordinated
buying behavior in real time, and delivers vetted alerts.

Usage:
  go run ./cmd/pulse [command]

Examples:
  go run ./cmd/pulse start
  go run ./cmd/pulse backtest --from 2026-07-01 --to 2026-08-01
  go run ./cmd/pulse wallets top
  go run ./cmd/pulse discover`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
