package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// algorithmsCmd represents the algorithms command
var algorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "알고리즘 버전 관리",
	Long: `등록된 시드 알고리즘 버전을 조회하고 활성 버전을 전환합니다.

Subcommands:
  list      - 등록된 버전 목록
  history   - 알고리즘 하나의 버전 이력
  activate  - 버전 활성화
  rollback  - 패밀리의 마지막 활성화 되돌리기
  events    - 패밀리의 버전 전환 이벤트

Example:
  go run ./cmd/seedrank algorithms list --family swing
  go run ./cmd/seedrank algorithms activate swing_momentum v2
  go run ./cmd/seedrank algorithms rollback swing`,
}

var (
	algorithmsListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 버전 목록",
		RunE:  listAlgorithms,
	}

	algorithmsHistoryCmd = &cobra.Command{
		Use:   "history [algorithm_id]",
		Short: "버전 이력 (생성 순)",
		Args:  cobra.ExactArgs(1),
		RunE:  algorithmHistory,
	}

	algorithmsActivateCmd = &cobra.Command{
		Use:   "activate [algorithm_id] [version]",
		Short: "버전 활성화",
		Args:  cobra.ExactArgs(2),
		RunE:  activateAlgorithm,
	}

	algorithmsRollbackCmd = &cobra.Command{
		Use:   "rollback [family]",
		Short: "마지막 활성화 되돌리기",
		Args:  cobra.ExactArgs(1),
		RunE:  rollbackFamily,
	}

	algorithmsEventsCmd = &cobra.Command{
		Use:   "events [family]",
		Short: "버전 전환 이벤트",
		Args:  cobra.ExactArgs(1),
		RunE:  familyEvents,
	}
)

var algorithmsFamily string

func init() {
	rootCmd.AddCommand(algorithmsCmd)
	algorithmsCmd.AddCommand(algorithmsListCmd)
	algorithmsCmd.AddCommand(algorithmsHistoryCmd)
	algorithmsCmd.AddCommand(algorithmsActivateCmd)
	algorithmsCmd.AddCommand(algorithmsRollbackCmd)
	algorithmsCmd.AddCommand(algorithmsEventsCmd)

	algorithmsListCmd.Flags().StringVar(&algorithmsFamily, "family", "", "활성 버전만 (패밀리 지정)")
	algorithmsActivateCmd.Flags().StringVar(&algorithmsFamily, "family", "", "대상 패밀리 (기본값: 버전의 패밀리)")
	algorithmsCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "JSON 출력")
}

func listAlgorithms(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var configs []contracts.AlgorithmConfig
	if algorithmsFamily != "" {
		family, err := contracts.ParseStrategyFamily(algorithmsFamily)
		if err != nil {
			return err
		}
		configs, err = a.registry.GetActive(family)
		if err != nil {
			return err
		}
	} else {
		configs = a.registry.List()
	}

	if outputJSON {
		return PrintJSON(configs)
	}
	printConfigs(configs)
	return nil
}

func algorithmHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	configs, err := a.registry.GetHistory(args[0])
	if err != nil {
		return err
	}

	if outputJSON {
		return PrintJSON(configs)
	}
	printConfigs(configs)
	return nil
}

func activateAlgorithm(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	warnEphemeral(a)

	algorithmID, version := args[0], args[1]

	var family contracts.StrategyFamily
	if algorithmsFamily != "" {
		family, err = contracts.ParseStrategyFamily(algorithmsFamily)
		if err != nil {
			return err
		}
	} else {
		cfg, err := a.registry.Get(algorithmID, version)
		if err != nil {
			return err
		}
		family = cfg.StrategyFamily
	}

	ev, err := a.registry.Activate(cmd.Context(), algorithmID, version, family)
	if err != nil {
		return err
	}
	if ev == nil {
		PrintInfo(fmt.Sprintf("%s@%s is already active for %s", algorithmID, version, family))
		return nil
	}

	PrintSuccess(fmt.Sprintf("Activated %s@%s for %s (previous: %s)", algorithmID, version, family, orDash(ev.FromVersion)))
	return nil
}

func rollbackFamily(cmd *cobra.Command, args []string) error {
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

	cfg, err := a.versions.Rollback(cmd.Context(), family)
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Rolled back %s: %s@%s is active again", family, cfg.AlgorithmID, cfg.Version))
	return nil
}

func familyEvents(cmd *cobra.Command, args []string) error {
	family, err := contracts.ParseStrategyFamily(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	events, err := a.versions.Events(cmd.Context(), family)
	if err != nil {
		return err
	}

	if outputJSON {
		return PrintJSON(events)
	}
	if len(events) == 0 {
		PrintInfo("No version events")
		return nil
	}

	widths := []int{19, 8, 22, 10, 10}
	PrintTableHeader([]string{"At", "Kind", "Algorithm", "From", "To"}, widths)
	for _, ev := range events {
		PrintTableRow([]string{
			formatTime(ev.At),
			string(ev.Kind),
			ev.AlgorithmID,
			orDash(ev.FromVersion),
			ev.ToVersion,
		}, widths)
	}
	return nil
}

func printConfigs(configs []contracts.AlgorithmConfig) {
	if len(configs) == 0 {
		PrintInfo("No algorithm versions")
		return
	}

	sort.SliceStable(configs, func(i, j int) bool {
		if configs[i].StrategyFamily != configs[j].StrategyFamily {
			return configs[i].StrategyFamily < configs[j].StrategyFamily
		}
		return configs[i].AlgorithmID < configs[j].AlgorithmID
	})

	widths := []int{13, 22, 8, 14, 6, 7, 6}
	PrintTableHeader([]string{"Family", "Algorithm", "Version", "Variant", "Weight", "Enabled", "Active"}, widths)
	for _, c := range configs {
		active := ""
		if c.IsActive {
			active = "✓"
		}
		PrintTableRow([]string{
			c.StrategyFamily.String(),
			c.AlgorithmID,
			c.Version,
			c.VariantKey(),
			fmt.Sprintf("%.2f", c.Weight),
			fmt.Sprintf("%v", c.Enabled),
			active,
		}, widths)
	}
}

// warnEphemeral notes that changes made against memory storage do not
// outlive the command
func warnEphemeral(a *app) {
	if a.db == nil {
		PrintWarning("STORAGE=memory: this change is lost when the command exits")
	}
}
