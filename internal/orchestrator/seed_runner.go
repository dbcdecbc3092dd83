package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

type seedResult struct {
	config     contracts.AlgorithmConfig
	candidates []contracts.Candidate
	failure    *contracts.SourceFailure
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// runSeed executes one algorithm against its own universe copy.
// Every failure mode ends up in the result, never in the caller.
func (o *Orchestrator) runSeed(ctx context.Context, cfg contracts.AlgorithmConfig, universe *contracts.Universe, limit int) seedResult {
	res := seedResult{config: cfg}
	fail := func(reason string, err error) seedResult {
		res.failure = &contracts.SourceFailure{
			AlgorithmID: cfg.AlgorithmID,
			Version:     cfg.Version,
			Reason:      reason,
		}
		if err != nil {
			res.failure.Error = err.Error()
		}
		return res
	}

	algo, ok := o.seeds.Get(cfg.VariantKey())
	if !ok {
		return fail(contracts.FailureUnknownVariant, fmt.Errorf("variant %q not in seed catalog", cfg.VariantKey()))
	}

	seedCtx, cancel := context.WithTimeout(ctx, o.opts.SeedTimeout)
	defer cancel()

	out, err := o.breakers.get(cfg.Key().String()).Execute(func() (interface{}, error) {
		return generate(seedCtx, algo, universe, cfg.Parameters)
	})
	if err != nil {
		var pe *panicError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return fail(contracts.FailureCircuitOpen, err)
		case errors.As(err, &pe):
			return fail(contracts.FailurePanic, err)
		case ctx.Err() != nil:
			// 실행 전체 시간 초과 (또는 호출자 취소)
			return fail(contracts.FailureRunTimeout, err)
		case seedCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded):
			return fail(contracts.FailureTimeout, err)
		default:
			return fail(contracts.FailureError, err)
		}
	}

	cands, _ := out.([]contracts.Candidate)
	if len(cands) == 0 {
		return fail(contracts.FailureEmpty, nil)
	}
	for _, c := range cands {
		if verr := c.Validate(); verr != nil {
			return fail(contracts.FailureMalformed, verr)
		}
	}

	// 출처 표기는 시드가 아니라 실행된 설정 기준
	stamped := make([]contracts.Candidate, len(cands))
	for i, c := range cands {
		c.SourceAlgorithmID = cfg.AlgorithmID
		c.SourceAlgorithmVersion = cfg.Version
		stamped[i] = c
	}
	sort.SliceStable(stamped, func(i, j int) bool {
		return stamped[i].RawScore > stamped[j].RawScore
	})
	if limit > 0 && len(stamped) > limit {
		stamped = stamped[:limit]
	}

	res.candidates = stamped
	return res
}

// generate runs the algorithm in its own goroutine so a seed that ignores
// ctx still cannot hold the run past its timeout
func generate(ctx context.Context, algo contracts.SeedAlgorithm, universe *contracts.Universe, params contracts.Parameters) ([]contracts.Candidate, error) {
	type outcome struct {
		cands []contracts.Candidate
		err   error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: &panicError{value: r}}
			}
		}()
		cands, err := algo.GenerateCandidates(ctx, universe, params)
		ch <- outcome{cands: cands, err: err}
	}()

	select {
	case r := <-ch:
		return r.cands, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// breakerSet holds one circuit breaker per algorithm version
type breakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	failures uint32
	cooldown time.Duration
	logger   *logger.Logger
}

func newBreakerSet(failures int, cooldown time.Duration, log *logger.Logger) *breakerSet {
	return &breakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		failures: uint32(failures),
		cooldown: cooldown,
		logger:   log,
	}
}

func (s *breakerSet) get(name string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: s.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.failures
		},
		// 호출자 취소는 시드 책임 아님
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Seed circuit breaker state changed")
		},
	})
	s.breakers[name] = cb
	return cb
}

// states reports the breaker state per algorithm version
func (s *breakerSet) states() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.breakers))
	for name, cb := range s.breakers {
		out[name] = cb.State().String()
	}
	return out
}

// BreakerStates reports the circuit breaker state per algorithm version
func (o *Orchestrator) BreakerStates() map[string]string {
	return o.breakers.states()
}
