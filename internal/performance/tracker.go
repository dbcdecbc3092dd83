package performance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/metrics"
)

// Options 성과 판정 기준
type Options struct {
	// EvaluationWindow 추천 후 평가까지 최소 경과 시간
	EvaluationWindow time.Duration
	// HitThreshold return_pct(%)가 이 값을 초과하면 hit
	HitThreshold float64
}

// DefaultOptions returns a 5 day window and a 0% threshold
func DefaultOptions() Options {
	return Options{EvaluationWindow: 5 * 24 * time.Hour, HitThreshold: 0}
}

// OutcomeSink receives closed outcomes of records that belong to an A/B arm
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, o contracts.ABOutcome) error
}

// QuoteFetcher supplies evaluation prices
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, symbols []string) (map[string]contracts.Quote, error)
}

// EvaluationResult counts records closed by one evaluation call
type EvaluationResult struct {
	Closed  int `json:"closed"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
	Skipped int `json:"skipped"` // 가격 없음
}

func (r *EvaluationResult) add(o EvaluationResult) {
	r.Closed += o.Closed
	r.Hits += o.Hits
	r.Misses += o.Misses
	r.Skipped += o.Skipped
}

// Tracker 추천 성과 추적기
// Records are created pending, closed exactly once and never deleted.
// ⭐ SSOT: 추천 성과 기록/판정은 여기서만
type Tracker struct {
	store   contracts.PerformanceStore
	opts    Options
	ab      OutcomeSink
	metrics *metrics.Recorder
	log     zerolog.Logger
	now     func() time.Time
}

// NewTracker 새 추적기 생성. ab and rec may be nil.
func NewTracker(store contracts.PerformanceStore, opts Options, ab OutcomeSink, rec *metrics.Recorder, log zerolog.Logger) *Tracker {
	if opts.EvaluationWindow < 0 {
		opts.EvaluationWindow = 0
	}
	return &Tracker{
		store:   store,
		opts:    opts,
		ab:      ab,
		metrics: rec,
		log:     log.With().Str("component", "performance.tracker").Logger(),
		now:     time.Now,
	}
}

// Options returns the active evaluation settings
func (t *Tracker) Options() Options {
	return t.opts
}

// RecordPending stores one open record. A record with the same
// (symbol, algorithm, version, recommended_at) is ignored.
func (t *Tracker) RecordPending(ctx context.Context, rec contracts.PerformanceRecord) (bool, error) {
	if rec.Symbol == "" || rec.AlgorithmID == "" || rec.AlgorithmVersion == "" {
		return false, fmt.Errorf("%w: symbol, algorithm_id and algorithm_version are required", contracts.ErrInvalidArgument)
	}
	if !(rec.RecommendedPrice > 0) || math.IsInf(rec.RecommendedPrice, 0) {
		return false, fmt.Errorf("%w: recommended_price must be positive", contracts.ErrInvalidArgument)
	}
	if rec.RecommendedAt.IsZero() {
		rec.RecommendedAt = t.now()
	}

	n, err := t.store.InsertPending(ctx, []contracts.PerformanceRecord{pending(rec)})
	if err != nil {
		return false, fmt.Errorf("insert pending: %w", err)
	}
	return n == 1, nil
}

func pending(rec contracts.PerformanceRecord) contracts.PerformanceRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.RecommendedAt = rec.RecommendedAt.UTC().Truncate(time.Microsecond)
	rec.Outcome = contracts.OutcomePending
	rec.EvaluatedAt = nil
	rec.EvaluatedPrice = nil
	rec.ReturnPct = nil
	return rec
}

// RecordBatch persists the batch and one pending record per
// (recommendation, contributing algorithm)
func (t *Tracker) RecordBatch(ctx context.Context, batch contracts.RecommendationBatch) (int, error) {
	if err := t.store.SaveBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("save batch: %w", err)
	}

	versions := make(map[string]string, len(batch.Metadata.ConfigVersions))
	for _, ref := range batch.Metadata.ConfigVersions {
		versions[ref.AlgorithmID] = ref.Version
	}

	records := make([]contracts.PerformanceRecord, 0, len(batch.Recommendations))
	unpriced := 0
	for _, rec := range batch.Recommendations {
		if !(rec.Price > 0) {
			unpriced++
			continue
		}
		for _, algID := range rec.ContributingAlgorithms {
			r := contracts.PerformanceRecord{
				RunID:            batch.RunID,
				Symbol:           rec.Symbol,
				AlgorithmID:      algID,
				AlgorithmVersion: versions[algID],
				StrategyFamily:   batch.StrategyFamily,
				RecommendedAt:    batch.CreatedAt,
				RecommendedPrice: rec.Price,
			}
			if batch.Metadata.ABTestID != "" && algID == batch.Metadata.ABAlgorithmID {
				r.ABTestID = batch.Metadata.ABTestID
				r.ABArm = batch.Metadata.ABArm
			}
			records = append(records, pending(r))
		}
	}

	inserted := 0
	if len(records) > 0 {
		n, err := t.store.InsertPending(ctx, records)
		if err != nil {
			return 0, fmt.Errorf("insert pending: %w", err)
		}
		inserted = n
	}

	level := zerolog.InfoLevel
	if unpriced > 0 {
		level = zerolog.WarnLevel
	}
	t.log.WithLevel(level).
		Str("run_id", batch.RunID).
		Int("unpriced", unpriced).
		Str("family", string(batch.StrategyFamily)).
		Int("recommendations", len(batch.Recommendations)).
		Int("records", inserted).
		Msg("batch recorded")

	return inserted, nil
}

// DuePending returns open records old enough to be evaluated at asOf
func (t *Tracker) DuePending(ctx context.Context, asOf time.Time, limit int) ([]contracts.PerformanceRecord, error) {
	return t.store.ListPending(ctx, contracts.PendingFilter{
		RecommendedBefore: asOf.Add(-t.opts.EvaluationWindow),
		Limit:             limit,
	})
}

// Evaluate closes the due pending records of (symbol, algorithm, version)
// at price. Already closed records are left untouched, so repeating a call
// changes nothing.
func (t *Tracker) Evaluate(ctx context.Context, symbol, algorithmID, version string, asOf time.Time, price float64) (EvaluationResult, error) {
	if !(price > 0) || math.IsInf(price, 0) {
		return EvaluationResult{}, fmt.Errorf("%w: price must be positive", contracts.ErrInvalidArgument)
	}

	due, err := t.store.ListPending(ctx, contracts.PendingFilter{
		Symbol:            symbol,
		AlgorithmID:       algorithmID,
		Version:           version,
		RecommendedBefore: asOf.Add(-t.opts.EvaluationWindow),
	})
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("list pending: %w", err)
	}

	var res EvaluationResult
	for _, rec := range due {
		r, err := t.close(ctx, rec, asOf, price)
		if err != nil {
			return res, err
		}
		res.add(r)
	}
	return res, nil
}

// EvaluateDue closes every due record using current quotes
func (t *Tracker) EvaluateDue(ctx context.Context, quotes QuoteFetcher, asOf time.Time) (EvaluationResult, error) {
	due, err := t.DuePending(ctx, asOf, 0)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("list due: %w", err)
	}
	if len(due) == 0 {
		return EvaluationResult{}, nil
	}

	seen := make(map[string]bool)
	symbols := make([]string, 0)
	for _, rec := range due {
		if !seen[rec.Symbol] {
			seen[rec.Symbol] = true
			symbols = append(symbols, rec.Symbol)
		}
	}
	sort.Strings(symbols)

	prices, err := quotes.FetchQuotes(ctx, symbols)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("fetch quotes: %w", err)
	}

	var res EvaluationResult
	for _, rec := range due {
		q, ok := prices[rec.Symbol]
		if !ok || !(q.Price > 0) {
			res.Skipped++
			continue
		}
		r, err := t.close(ctx, rec, asOf, q.Price)
		if err != nil {
			return res, err
		}
		res.add(r)
	}

	t.log.Info().
		Int("due", len(due)).
		Int("closed", res.Closed).
		Int("hits", res.Hits).
		Int("skipped", res.Skipped).
		Msg("due records evaluated")

	return res, nil
}

func (t *Tracker) close(ctx context.Context, rec contracts.PerformanceRecord, asOf time.Time, price float64) (EvaluationResult, error) {
	ret := (price - rec.RecommendedPrice) / rec.RecommendedPrice * 100
	outcome := contracts.OutcomeMiss
	if ret > t.opts.HitThreshold {
		outcome = contracts.OutcomeHit
	}

	evaluatedAt := asOf.UTC()
	rec.Outcome = outcome
	rec.EvaluatedAt = &evaluatedAt
	rec.EvaluatedPrice = &price
	rec.ReturnPct = &ret

	closed, err := t.store.CloseRecord(ctx, rec)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("close record %s: %w", rec.ID, err)
	}
	if !closed {
		return EvaluationResult{}, nil
	}

	t.metrics.RecordEvaluation(string(outcome))

	if rec.ABTestID != "" && rec.ABArm.Valid() && t.ab != nil {
		err := t.ab.RecordOutcome(ctx, contracts.ABOutcome{
			TestID:     rec.ABTestID,
			RecordID:   rec.ID,
			Arm:        rec.ABArm,
			Outcome:    outcome,
			ReturnPct:  ret,
			RecordedAt: evaluatedAt,
		})
		if err != nil {
			// 성과 기록은 이미 닫힘, A/B 집계 누락만 남김
			t.log.Error().Err(err).
				Str("test_id", rec.ABTestID).
				Str("record_id", rec.ID).
				Msg("failed to forward outcome")
		}
	}

	res := EvaluationResult{Closed: 1}
	if outcome == contracts.OutcomeHit {
		res.Hits = 1
	} else {
		res.Misses = 1
	}
	return res, nil
}

// GetMetrics aggregates the closed records of one algorithm version
func (t *Tracker) GetMetrics(ctx context.Context, algorithmID, version string) (*contracts.PerformanceMetrics, error) {
	records, err := t.store.ListByAlgorithm(ctx, algorithmID, version)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	m := Aggregate(records)
	m.AlgorithmID = algorithmID
	m.Version = version
	return &m, nil
}

// Aggregate computes hit rate and mean return over closed records
func Aggregate(records []contracts.PerformanceRecord) contracts.PerformanceMetrics {
	var m contracts.PerformanceMetrics
	var hits int
	var sum float64

	for _, r := range records {
		if r.IsPending() {
			m.Pending++
			continue
		}
		m.SampleSize++
		if r.Outcome == contracts.OutcomeHit {
			hits++
		}
		if r.ReturnPct != nil {
			sum += *r.ReturnPct
		}
	}

	if m.SampleSize > 0 {
		m.HitRate = float64(hits) / float64(m.SampleSize)
		m.MeanReturn = sum / float64(m.SampleSize)
	}
	return m
}
