package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/seedrank/backend/pkg/config"
	"github.com/wonny/seedrank/backend/pkg/database"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 스키마 적용",
	Long: `seedrank 스키마(알고리즘 버전, 버전 이벤트, A/B 테스트, 추천 배치, 성과 기록)를 적용합니다.

모든 문장은 IF NOT EXISTS 로 작성되어 반복 실행해도 안전합니다.

Example:
  go run ./cmd/seedrank migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage != config.StoragePostgres {
		PrintWarning("STORAGE is not postgres, nothing to migrate")
		return nil
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		return err
	}

	stats := db.Stats()
	log.WithField("total_conns", stats.TotalConns).Info("Schema applied")
	PrintSuccess("Schema applied")
	return nil
}
