package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile  string
	catalogPath string
	storage     string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "seedrank",
	Short: "SeedRank - 시드 알고리즘 추천 집계/랭킹 엔진",
	Long: `SeedRank Unified CLI

여러 시드 알고리즘의 후보 종목을 병합해 전략 패밀리별 추천 순위를 만듭니다.
알고리즘 버전 관리, A/B 테스트, 사후 성과 추적을 함께 제공합니다.

Usage:
  go run ./cmd/seedrank [command]

Examples:
  go run ./cmd/seedrank api
  go run ./cmd/seedrank run swing --top 10
  go run ./cmd/seedrank algorithms list --family swing
  go run ./cmd/seedrank scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "strategy catalog YAML (overrides STRATEGY_CATALOG)")
	rootCmd.PersistentFlags().StringVar(&storage, "storage", "", "storage backend: postgres | memory (overrides STORAGE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
