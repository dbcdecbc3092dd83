package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// performanceCmd represents the performance command
var performanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "추천 성과 추적",
	Long: `추천 시점 가격 대비 평가 윈도 이후 가격으로 적중 여부를 판정합니다.

Subcommands:
  evaluate  - 평가 기한이 지난 pending 기록 판정
  metrics   - 알고리즘 버전별 적중률/평균 수익률

Example:
  go run ./cmd/seedrank performance evaluate
  go run ./cmd/seedrank performance evaluate --as-of 2026-10-16T21:00:00Z
  go run ./cmd/seedrank performance metrics swing_momentum v2`,
}

var (
	performanceEvaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "pending 기록 판정",
		RunE:  evaluatePending,
	}

	performanceMetricsCmd = &cobra.Command{
		Use:   "metrics [algorithm_id] [version]",
		Short: "버전별 성과 지표",
		Args:  cobra.ExactArgs(2),
		RunE:  showMetrics,
	}
)

var evaluateAsOf string

func init() {
	rootCmd.AddCommand(performanceCmd)
	performanceCmd.AddCommand(performanceEvaluateCmd)
	performanceCmd.AddCommand(performanceMetricsCmd)

	performanceEvaluateCmd.Flags().StringVar(&evaluateAsOf, "as-of", "", "판정 기준 시각 RFC3339 (기본값: 현재)")
	performanceCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "JSON 출력")
}

func evaluatePending(cmd *cobra.Command, args []string) error {
	asOf := time.Now().UTC()
	if evaluateAsOf != "" {
		t, err := time.Parse(time.RFC3339, evaluateAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of: %w", err)
		}
		asOf = t.UTC()
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.tracker.EvaluateDue(cmd.Context(), a.market, asOf)
	if err != nil {
		return err
	}

	if outputJSON {
		return PrintJSON(res)
	}
	PrintHeader("Performance Evaluation", [][2]string{
		{"As of", formatTime(asOf)},
		{"Window", a.tracker.Options().EvaluationWindow.String()},
	})
	PrintKeyValue("Closed", fmt.Sprintf("%d", res.Closed), 8)
	PrintKeyValue("Hits", fmt.Sprintf("%d", res.Hits), 8)
	PrintKeyValue("Misses", fmt.Sprintf("%d", res.Misses), 8)
	PrintKeyValue("Skipped", fmt.Sprintf("%d (no price)", res.Skipped), 8)
	return nil
}

func showMetrics(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.tracker.GetMetrics(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	if outputJSON {
		return PrintJSON(m)
	}
	PrintHeader(fmt.Sprintf("%s@%s", m.AlgorithmID, m.Version), nil)
	PrintKeyValue("Hit rate", formatPct(m.HitRate), 11)
	PrintKeyValue("Mean return", fmt.Sprintf("%.2f%%", m.MeanReturn), 11)
	PrintKeyValue("Samples", fmt.Sprintf("%d", m.SampleSize), 11)
	PrintKeyValue("Pending", fmt.Sprintf("%d", m.Pending), 11)
	return nil
}
