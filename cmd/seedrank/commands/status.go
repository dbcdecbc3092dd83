package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "엔진 상태 요약",
	Long: `엔진 구성 상태를 출력합니다.

표시 정보:
- 저장소 / DB 연결 상태
- 시장 데이터 소스
- 전략 카탈로그 (id, version, hash)
- 패밀리별 활성 알고리즘 수
- 실행 중인 A/B 테스트

Example:
  go run ./cmd/seedrank status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	storageState := a.cfg.Storage
	if a.db != nil {
		health, err := a.db.HealthCheck(cmd.Context())
		switch {
		case err != nil:
			storageState += " (unhealthy: " + err.Error() + ")"
		default:
			storageState += fmt.Sprintf(" (healthy, %s, %d conns)", health.ResponseTime, health.Stats.TotalConns)
		}
	}

	PrintHeader("SeedRank Status", [][2]string{
		{"Env", a.cfg.Env},
		{"Storage", storageState},
		{"Redis", fmt.Sprintf("%v", a.redis.Enabled())},
		{"Market", orDash(a.cfg.Market.Source)},
		{"Catalog", fmt.Sprintf("%s %s", a.snapshot.CatalogID, a.snapshot.Version)},
		{"Hash", a.snapshot.Hash[:12]},
	})

	widths := []int{14, 7, 24, 20}
	PrintTableHeader([]string{"Family", "Active", "Refresh", "A/B test"}, widths)
	for _, family := range contracts.AllFamilies() {
		active := 0
		if configs, err := a.registry.GetActive(family); err == nil {
			active = len(configs)
		}
		ab := "-"
		if t, ok := a.abtests.Running(family); ok {
			ab = fmt.Sprintf("%s %s→%s", t.AlgorithmID, t.ControlVersion, t.ChallengerVersion)
		}
		PrintTableRow([]string{
			family.String(),
			fmt.Sprintf("%d", active),
			orDash(a.catalog.Family(family).RefreshCron),
			ab,
		}, widths)
	}
	fmt.Println()
	return nil
}
