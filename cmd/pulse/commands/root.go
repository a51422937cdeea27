package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "CoinPulse - 실시간 코인 거래대금 랭킹 엔진",
	Long: `CoinPulse Unified CLI

업비트 체결 스트림을 타임프레임별로 집계해
거래대금/급등 랭킹과 섹터 집계를 실시간 제공합니다.

Usage:
  go run ./cmd/pulse [command]

Examples:
  go run ./cmd/pulse start
  go run ./cmd/pulse status
  go run ./cmd/pulse test-db
  go run ./cmd/pulse test-logger`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
