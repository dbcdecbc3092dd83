package contracts

import (
	"context"
	"errors"
)

// ⭐ SSOT: 도메인 에러는 여기서만 정의
// 래핑은 fmt.Errorf("...: %w", err), 판별은 errors.Is 사용
var (
	// ErrInvalidStrategyFamily unknown family, rejected before any work
	ErrInvalidStrategyFamily = errors.New("invalid strategy family")

	// ErrConfigurationMissing no active enabled algorithm config for the family
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrDuplicateVersion (algorithm_id, version) already registered
	ErrDuplicateVersion = errors.New("duplicate version")

	// ErrNoPriorVersion rollback requested with nothing to roll back to
	ErrNoPriorVersion = errors.New("no prior version")

	// ErrTestAlreadyRunning a second A/B test for a family with one running
	ErrTestAlreadyRunning = errors.New("test already running")

	// ErrAllSourcesFailed every seed algorithm in a run failed
	ErrAllSourcesFailed = errors.New("all sources failed")

	// ErrSourceDataInvalid input universe is totally corrupt for a seed
	ErrSourceDataInvalid = errors.New("source data invalid")

	// ErrCancelled caller cancelled the run
	ErrCancelled = errors.New("cancelled")

	// ErrDataUnavailable market data provider could not serve the request
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrNotFound entity lookup miss
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument caller supplied an invalid value
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error codes exposed to API clients
const (
	CodeInvalidStrategyFamily = "invalid_strategy_family"
	CodeConfigurationMissing  = "configuration_missing"
	CodeDuplicateVersion      = "duplicate_version"
	CodeNoPriorVersion        = "no_prior_version"
	CodeTestAlreadyRunning    = "test_already_running"
	CodeAllSourcesFailed      = "all_sources_failed"
	CodeSourceDataInvalid     = "source_data_invalid"
	CodeCancelled             = "cancelled"
	CodeDataUnavailable       = "data_unavailable"
	CodeNotFound              = "not_found"
	CodeInvalidArgument       = "invalid_argument"
	CodeInternal              = "internal_error"
)

var errorCodes = []struct {
	err  error
	code string
}{
	// 순서 중요: AllSourcesFailed가 DataUnavailable을 감쌀 수 있음
	{ErrAllSourcesFailed, CodeAllSourcesFailed},
	{ErrInvalidStrategyFamily, CodeInvalidStrategyFamily},
	{ErrConfigurationMissing, CodeConfigurationMissing},
	{ErrDuplicateVersion, CodeDuplicateVersion},
	{ErrNoPriorVersion, CodeNoPriorVersion},
	{ErrTestAlreadyRunning, CodeTestAlreadyRunning},
	{ErrSourceDataInvalid, CodeSourceDataInvalid},
	{ErrCancelled, CodeCancelled},
	{context.Canceled, CodeCancelled},
	{ErrDataUnavailable, CodeDataUnavailable},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidArgument, CodeInvalidArgument},
}

// ErrorCode maps an error chain to a short, client-safe code
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}
