package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/internal/orchestrator"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [family]",
	Short: "추천 1회 실행",
	Long: `전략 패밀리 하나에 대해 추천을 실행하고 순위표를 출력합니다.

family: longterm | swing | shortterm | intraday_buy | intraday_sell | custom

지정하지 않은 파라미터는 전략 카탈로그의 패밀리 기본값을 사용합니다.
실행 결과는 저장되고 성과 추적 대상으로 등록됩니다.

Example:
  go run ./cmd/seedrank run swing
  go run ./cmd/seedrank run intraday_buy --top 5 --min-score 40
  go run ./cmd/seedrank run longterm --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRecommendation,
}

var (
	runLimit     int
	runMinScore  float64
	runTop       int
	runForce     bool
	runRequestID string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runLimit, "limit", 0, "시드 알고리즘별 후보 수 (0 = 기본값)")
	runCmd.Flags().Float64Var(&runMinScore, "min-score", -1, "최소 정규화 점수 0~100 (음수 = 기본값)")
	runCmd.Flags().IntVar(&runTop, "top", 0, "최대 추천 수 (0 = 기본값)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "universe 캐시 무시")
	runCmd.Flags().StringVar(&runRequestID, "request-id", "", "A/B 라우팅 식별자")
	runCmd.Flags().BoolVar(&outputJSON, "json", false, "JSON 출력")
}

func runRecommendation(cmd *cobra.Command, args []string) error {
	family, err := contracts.ParseStrategyFamily(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	params := contracts.RequestParams{
		LimitPerQuery:      runLimit,
		TopRecommendations: runTop,
		ForceRefresh:       runForce,
		RequestID:          runRequestID,
	}
	if runMinScore >= 0 {
		params.MinScore = contracts.Float64(runMinScore)
	}

	result, runErr := a.orchestrator.Run(cmd.Context(), family, params)

	// 성과 기록 hand-off 완료까지 대기
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := a.orchestrator.Drain(drainCtx); err != nil {
		a.log.WithError(err).Warn("Performance hand-off not finished")
	}

	if outputJSON && result != nil {
		if err := PrintJSON(result); err != nil {
			return err
		}
		return runErr
	}

	if result != nil {
		printRunResult(result)
	}
	if runErr != nil {
		if errors.Is(runErr, contracts.ErrAllSourcesFailed) {
			PrintError("All seed algorithms failed")
		}
		return runErr
	}
	return nil
}

func printRunResult(result *orchestrator.RunResult) {
	meta := result.Metadata

	status := "ok"
	if meta.Partial {
		status = "partial"
	}
	header := [][2]string{
		{"Run ID", meta.RunID},
		{"Family", meta.StrategyFamily.String()},
		{"Started", formatTime(meta.StartedAt)},
		{"Duration", fmt.Sprintf("%dms", meta.DurationMS)},
		{"Universe", fmt.Sprintf("%d symbols (cache hit: %v)", meta.UniverseSize, meta.CacheHit)},
		{"Status", status},
	}
	if meta.ABTestID != "" {
		header = append(header, [2]string{"A/B", fmt.Sprintf("%s → %s", meta.ABTestID, meta.ABArm)})
	}
	PrintHeader("Recommendations", header)

	if len(meta.ConfigVersions) > 0 {
		fmt.Println("Algorithms:")
		items := make([]string, 0, len(meta.ConfigVersions))
		for _, ref := range meta.ConfigVersions {
			items = append(items, fmt.Sprintf("%s@%s (weight %.2f, %d candidates)",
				ref.AlgorithmID, ref.Version, ref.Weight, meta.CandidateCounts[ref.AlgorithmID]))
		}
		PrintList(items)
		fmt.Println()
	}

	if len(meta.Failures) > 0 {
		fmt.Println("Failures:")
		items := make([]string, 0, len(meta.Failures))
		for _, f := range meta.Failures {
			items = append(items, fmt.Sprintf("%s@%s: %s %s", f.AlgorithmID, f.Version, f.Reason, f.Error))
		}
		PrintList(items)
		fmt.Println()
	}

	if len(result.Recommendations) == 0 {
		PrintInfo("No recommendations passed the minimum score")
		return
	}

	widths := []int{4, 10, 7, 5, 5, 10, 30}
	PrintTableHeader([]string{"Rank", "Symbol", "Score", "Hits", "Cats", "Price", "Algorithms"}, widths)
	for _, r := range result.Recommendations {
		price := "-"
		if r.Price > 0 {
			price = fmt.Sprintf("%.2f", r.Price)
		}
		PrintTableRow([]string{
			fmt.Sprintf("%d", r.Rank),
			r.Symbol,
			fmt.Sprintf("%.1f", r.NormalizedScore),
			fmt.Sprintf("%d", r.Appearances),
			fmt.Sprintf("%d", r.CategoryCount),
			price,
			strings.Join(r.ContributingAlgorithms, ","),
		}, widths)
	}

	if len(meta.CategoryBreakdown) > 0 {
		cats := make([]string, 0, len(meta.CategoryBreakdown))
		for c, n := range meta.CategoryBreakdown {
			cats = append(cats, fmt.Sprintf("%s=%d", c, n))
		}
		sort.Strings(cats)
		fmt.Println()
		PrintKeyValue("Categories", strings.Join(cats, " "), 10)
	}
	fmt.Println()
}
