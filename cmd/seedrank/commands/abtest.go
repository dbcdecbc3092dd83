package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/seedrank/backend/internal/abtest"
	"github.com/wonny/seedrank/backend/internal/contracts"
)

// abtestCmd represents the abtest command
var abtestCmd = &cobra.Command{
	Use:   "abtest",
	Short: "A/B 테스트 관리",
	Long: `알고리즘 두 버전 간 A/B 테스트를 시작/조회/종료합니다.

패밀리당 동시에 하나의 테스트만 실행됩니다.
라우팅은 (test id, request id) 해시로 결정되어 같은 요청은 항상 같은 arm으로 갑니다.

Subcommands:
  start     - 테스트 시작
  list      - 테스트 목록
  summary   - arm별 결과 집계
  complete  - 테스트 종료 (최종 집계 저장)
  abort     - 테스트 중단

Example:
  go run ./cmd/seedrank abtest start swing swing_momentum v1 v2 --split 0.2
  go run ./cmd/seedrank abtest summary <test_id>`,
}

var (
	abtestStartCmd = &cobra.Command{
		Use:   "start [family] [algorithm_id] [control_version] [challenger_version]",
		Short: "테스트 시작",
		Args:  cobra.ExactArgs(4),
		RunE:  startABTest,
	}

	abtestListCmd = &cobra.Command{
		Use:   "list",
		Short: "테스트 목록",
		RunE:  listABTests,
	}

	abtestSummaryCmd = &cobra.Command{
		Use:   "summary [test_id]",
		Short: "arm별 결과 집계",
		Args:  cobra.ExactArgs(1),
		RunE:  summarizeABTest,
	}

	abtestCompleteCmd = &cobra.Command{
		Use:   "complete [test_id]",
		Short: "테스트 종료",
		Args:  cobra.ExactArgs(1),
		RunE:  completeABTest,
	}

	abtestAbortCmd = &cobra.Command{
		Use:   "abort [test_id]",
		Short: "테스트 중단",
		Args:  cobra.ExactArgs(1),
		RunE:  abortABTest,
	}
)

var abtestSplit float64

func init() {
	rootCmd.AddCommand(abtestCmd)
	abtestCmd.AddCommand(abtestStartCmd)
	abtestCmd.AddCommand(abtestListCmd)
	abtestCmd.AddCommand(abtestSummaryCmd)
	abtestCmd.AddCommand(abtestCompleteCmd)
	abtestCmd.AddCommand(abtestAbortCmd)

	abtestStartCmd.Flags().Float64Var(&abtestSplit, "split", -1, "challenger 트래픽 비율 0~1 (음수 = 카탈로그 기본값)")
	abtestCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "JSON 출력")
}

func startABTest(cmd *cobra.Command, args []string) error {
	family, err := contracts.ParseStrategyFamily(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	warnEphemeral(a)

	req := abtest.StartRequest{
		StrategyFamily:    family,
		AlgorithmID:       args[1],
		ControlVersion:    args[2],
		ChallengerVersion: args[3],
	}
	if abtestSplit >= 0 {
		req.TrafficSplit = &abtestSplit
	}

	t, err := a.abtests.StartTest(cmd.Context(), req)
	if err != nil {
		return err
	}

	if outputJSON {
		return PrintJSON(t)
	}
	PrintSuccess(fmt.Sprintf("Started A/B test %s", t.TestID))
	printABTest(*t)
	return nil
}

func listABTests(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	tests := a.abtests.List()
	if outputJSON {
		return PrintJSON(tests)
	}
	if len(tests) == 0 {
		PrintInfo("No A/B tests")
		return nil
	}

	widths := []int{36, 13, 20, 16, 6, 10}
	PrintTableHeader([]string{"Test ID", "Family", "Algorithm", "Versions", "Split", "Status"}, widths)
	for _, t := range tests {
		PrintTableRow([]string{
			t.TestID,
			t.StrategyFamily.String(),
			t.AlgorithmID,
			fmt.Sprintf("%s→%s", t.ControlVersion, t.ChallengerVersion),
			fmt.Sprintf("%.2f", t.TrafficSplit),
			string(t.Status),
		}, widths)
	}
	return nil
}

func summarizeABTest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.abtests.Summarize(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if outputJSON {
		return PrintJSON(summary)
	}
	printSummary(*summary)
	return nil
}

func completeABTest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	warnEphemeral(a)

	t, err := a.abtests.Complete(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if outputJSON {
		return PrintJSON(t)
	}
	PrintSuccess(fmt.Sprintf("Completed A/B test %s", t.TestID))
	printABTest(*t)
	if t.OutcomeSummary != nil {
		printSummary(*t.OutcomeSummary)
	}
	return nil
}

func abortABTest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	warnEphemeral(a)

	t, err := a.abtests.Abort(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Aborted A/B test %s", t.TestID))
	return nil
}

func printABTest(t contracts.ABTest) {
	PrintKeyValue("Family", t.StrategyFamily.String(), 10)
	PrintKeyValue("Algorithm", t.AlgorithmID, 10)
	PrintKeyValue("Control", t.ControlVersion, 10)
	PrintKeyValue("Challenger", fmt.Sprintf("%s (%s of traffic)", t.ChallengerVersion, formatPct(t.TrafficSplit)), 10)
	PrintKeyValue("Status", string(t.Status), 10)
	PrintKeyValue("Started", formatTime(t.StartedAt), 10)
	if t.EndedAt != nil {
		PrintKeyValue("Ended", formatTime(*t.EndedAt), 10)
	}
}

func printSummary(s contracts.OutcomeSummary) {
	fmt.Println()
	widths := []int{10, 10, 8, 6, 9, 11}
	PrintTableHeader([]string{"Arm", "Version", "Samples", "Hits", "Hit Rate", "Mean Ret %"}, widths)
	for _, row := range []struct {
		arm string
		sum contracts.ArmSummary
	}{
		{string(contracts.ArmControl), s.Control},
		{string(contracts.ArmChallenger), s.Challenger},
	} {
		PrintTableRow([]string{
			row.arm,
			row.sum.Version,
			fmt.Sprintf("%d", row.sum.SampleSize),
			fmt.Sprintf("%d", row.sum.Hits),
			formatPct(row.sum.HitRate),
			fmt.Sprintf("%.2f", row.sum.MeanReturn),
		}, widths)
	}
	fmt.Println()
	PrintKeyValue("Winner", s.Winner, 10)
	PrintKeyValue("Computed", formatTime(s.ComputedAt), 10)
}
