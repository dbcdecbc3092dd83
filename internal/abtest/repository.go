package abtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/seedrank/backend/internal/contracts"
)

const uniqueViolation = "23505"

// Repository is the Postgres ABTestStore
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new A/B test repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const testColumns = `test_id, strategy_family, algorithm_id, control_version, challenger_version,
	traffic_split, status, started_at, ended_at, outcome_summary`

// CreateTest inserts a test; the partial unique index rejects a second running test
func (r *Repository) CreateTest(ctx context.Context, t contracts.ABTest) error {
	summaryJSON, err := marshalSummary(t.OutcomeSummary)
	if err != nil {
		return err
	}

	query := `INSERT INTO seedrank.ab_tests (` + testColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.pool.Exec(ctx, query,
		t.TestID,
		string(t.StrategyFamily),
		t.AlgorithmID,
		t.ControlVersion,
		t.ChallengerVersion,
		t.TrafficSplit,
		string(t.Status),
		t.StartedAt,
		t.EndedAt,
		summaryJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "ab_tests_one_running" {
			return fmt.Errorf("family %s: %w", t.StrategyFamily, contracts.ErrTestAlreadyRunning)
		}
		return fmt.Errorf("failed to insert test: %w", err)
	}
	return nil
}

// GetTest retrieves one test
func (r *Repository) GetTest(ctx context.Context, testID string) (*contracts.ABTest, error) {
	query := `SELECT ` + testColumns + ` FROM seedrank.ab_tests WHERE test_id = $1`

	t, err := scanTest(r.pool.QueryRow(ctx, query, testID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("test %s: %w", testID, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	return t, nil
}

// ListTests returns all tests, newest first
func (r *Repository) ListTests(ctx context.Context) ([]contracts.ABTest, error) {
	query := `SELECT ` + testColumns + ` FROM seedrank.ab_tests ORDER BY started_at DESC, test_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tests: %w", err)
	}
	defer rows.Close()

	results := make([]contracts.ABTest, 0)
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// UpdateTest stores status, end time and summary
func (r *Repository) UpdateTest(ctx context.Context, t contracts.ABTest) error {
	summaryJSON, err := marshalSummary(t.OutcomeSummary)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE seedrank.ab_tests
		SET status = $2, ended_at = $3, outcome_summary = $4, traffic_split = $5
		WHERE test_id = $1
	`, t.TestID, string(t.Status), t.EndedAt, summaryJSON, t.TrafficSplit)
	if err != nil {
		return fmt.Errorf("failed to update test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("test %s: %w", t.TestID, contracts.ErrNotFound)
	}
	return nil
}

// AppendOutcome is idempotent on (test_id, record_id)
func (r *Repository) AppendOutcome(ctx context.Context, o contracts.ABOutcome) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO seedrank.ab_outcomes (test_id, record_id, arm, outcome, return_pct, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (test_id, record_id) DO NOTHING
	`, o.TestID, o.RecordID, string(o.Arm), string(o.Outcome), o.ReturnPct, o.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// ListOutcomes returns a test's outcomes in recording order
func (r *Repository) ListOutcomes(ctx context.Context, testID string) ([]contracts.ABOutcome, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT test_id, record_id, arm, outcome, return_pct, recorded_at
		FROM seedrank.ab_outcomes
		WHERE test_id = $1
		ORDER BY recorded_at, record_id
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}

	outcomes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.ABOutcome, error) {
		var o contracts.ABOutcome
		var arm, outcome string
		err := row.Scan(&o.TestID, &o.RecordID, &arm, &outcome, &o.ReturnPct, &o.RecordedAt)
		o.Arm = contracts.ABArm(arm)
		o.Outcome = contracts.Outcome(outcome)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan outcomes: %w", err)
	}
	return outcomes, nil
}

func scanTest(row pgx.Row) (*contracts.ABTest, error) {
	var t contracts.ABTest
	var family, status string
	var endedAt *time.Time
	var summaryJSON []byte

	err := row.Scan(
		&t.TestID,
		&family,
		&t.AlgorithmID,
		&t.ControlVersion,
		&t.ChallengerVersion,
		&t.TrafficSplit,
		&status,
		&t.StartedAt,
		&endedAt,
		&summaryJSON,
	)
	if err != nil {
		return nil, err
	}

	t.StrategyFamily = contracts.StrategyFamily(family)
	t.Status = contracts.ABTestStatus(status)
	t.EndedAt = endedAt
	if len(summaryJSON) > 0 {
		var s contracts.OutcomeSummary
		if err := json.Unmarshal(summaryJSON, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcome summary: %w", err)
		}
		t.OutcomeSummary = &s
	}
	return &t, nil
}

func marshalSummary(s *contracts.OutcomeSummary) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outcome summary: %w", err)
	}
	return b, nil
}
