package contracts

import "time"

// ABArm A/B 테스트 그룹
type ABArm string

const (
	ArmControl    ABArm = "control"
	ArmChallenger ABArm = "challenger"
)

// Valid reports whether a is a known arm
func (a ABArm) Valid() bool {
	return a == ArmControl || a == ArmChallenger
}

// ABTestStatus lifecycle of a test
type ABTestStatus string

const (
	TestRunning   ABTestStatus = "running"
	TestCompleted ABTestStatus = "completed"
	TestAborted   ABTestStatus = "aborted"
)

// ABTest compares two versions of one algorithm within a family
type ABTest struct {
	TestID            string          `json:"test_id"`
	StrategyFamily    StrategyFamily  `json:"strategy_family"`
	AlgorithmID       string          `json:"algorithm_id"`
	ControlVersion    string          `json:"control_version"`
	ChallengerVersion string          `json:"challenger_version"`
	TrafficSplit      float64         `json:"traffic_split"` // challenger 비율 [0,1]
	StartedAt         time.Time       `json:"started_at"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
	Status            ABTestStatus    `json:"status"`
	OutcomeSummary    *OutcomeSummary `json:"outcome_summary,omitempty"`
}

// IsRunning reports whether the test still routes traffic
func (t *ABTest) IsRunning() bool {
	return t.Status == TestRunning
}

// VersionFor returns the algorithm version served by an arm
func (t *ABTest) VersionFor(arm ABArm) string {
	if arm == ArmChallenger {
		return t.ChallengerVersion
	}
	return t.ControlVersion
}

// ArmFor returns the arm a version belongs to, if any
func (t *ABTest) ArmFor(version string) (ABArm, bool) {
	switch version {
	case t.ChallengerVersion:
		return ArmChallenger, true
	case t.ControlVersion:
		return ArmControl, true
	}
	return "", false
}

// ABOutcome is one closed performance record attributed to an arm
type ABOutcome struct {
	TestID     string    `json:"test_id"`
	RecordID   string    `json:"record_id"`
	Arm        ABArm     `json:"arm"`
	Outcome    Outcome   `json:"outcome"`
	ReturnPct  float64   `json:"return_pct"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ArmSummary aggregates outcomes of one arm
type ArmSummary struct {
	Version    string  `json:"version"`
	SampleSize int     `json:"sample_size"`
	Hits       int     `json:"hits"`
	HitRate    float64 `json:"hit_rate"`
	MeanReturn float64 `json:"mean_return"`
}

// Winner labels used by OutcomeSummary
const (
	WinnerControl      = "control"
	WinnerChallenger   = "challenger"
	WinnerInconclusive = "inconclusive"
)

// OutcomeSummary compares the two arms of a test
type OutcomeSummary struct {
	Control    ArmSummary `json:"control"`
	Challenger ArmSummary `json:"challenger"`
	Winner     string     `json:"winner"`
	ComputedAt time.Time  `json:"computed_at"`
}
