package abtest

import (
	"sort"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// summarize compares the arms: higher hit rate wins, then higher mean
// return. Either arm below minSamples is inconclusive.
func summarize(t contracts.ABTest, outcomes []contracts.ABOutcome, minSamples int) contracts.OutcomeSummary {
	control := contracts.ArmSummary{Version: t.ControlVersion}
	challenger := contracts.ArmSummary{Version: t.ChallengerVersion}

	var controlSum, challengerSum float64
	for _, o := range outcomes {
		arm := &control
		sum := &controlSum
		if o.Arm == contracts.ArmChallenger {
			arm = &challenger
			sum = &challengerSum
		}
		arm.SampleSize++
		if o.Outcome == contracts.OutcomeHit {
			arm.Hits++
		}
		*sum += o.ReturnPct
	}

	finishArm(&control, controlSum)
	finishArm(&challenger, challengerSum)

	return contracts.OutcomeSummary{
		Control:    control,
		Challenger: challenger,
		Winner:     pickWinner(control, challenger, minSamples),
	}
}

func finishArm(a *contracts.ArmSummary, sum float64) {
	if a.SampleSize == 0 {
		return
	}
	a.HitRate = float64(a.Hits) / float64(a.SampleSize)
	a.MeanReturn = sum / float64(a.SampleSize)
}

func pickWinner(control, challenger contracts.ArmSummary, minSamples int) string {
	if control.SampleSize < minSamples || challenger.SampleSize < minSamples {
		return contracts.WinnerInconclusive
	}
	switch {
	case challenger.HitRate > control.HitRate:
		return contracts.WinnerChallenger
	case challenger.HitRate < control.HitRate:
		return contracts.WinnerControl
	case challenger.MeanReturn > control.MeanReturn:
		return contracts.WinnerChallenger
	case challenger.MeanReturn < control.MeanReturn:
		return contracts.WinnerControl
	}
	return contracts.WinnerInconclusive
}

// sortTests orders newest first
func sortTests(tests []contracts.ABTest) {
	sort.Slice(tests, func(i, j int) bool {
		if !tests[i].StartedAt.Equal(tests[j].StartedAt) {
			return tests[i].StartedAt.After(tests[j].StartedAt)
		}
		return tests[i].TestID < tests[j].TestID
	})
}
