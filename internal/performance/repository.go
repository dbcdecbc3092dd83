package performance

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/internal/selection"
)

// Repository is the Postgres PerformanceStore
type Repository struct {
	*selection.BatchRepository
	pool *pgxpool.Pool
}

// NewRepository creates a new performance repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		BatchRepository: selection.NewBatchRepository(pool),
		pool:            pool,
	}
}

const recordColumns = `id, run_id, symbol, algorithm_id, algorithm_version, strategy_family,
	recommended_at, recommended_price, evaluated_at, evaluated_price, outcome, return_pct,
	ab_test_id, ab_arm`

// InsertPending inserts all records in one batch; duplicates are skipped
func (r *Repository) InsertPending(ctx context.Context, records []contracts.PerformanceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO seedrank.performance_records (
			id, run_id, symbol, algorithm_id, algorithm_version, strategy_family,
			recommended_at, recommended_price, outcome, ab_test_id, ab_arm
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9, $10)
		ON CONFLICT (symbol, algorithm_id, algorithm_version, recommended_at) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query,
			rec.ID,
			rec.RunID,
			rec.Symbol,
			rec.AlgorithmID,
			rec.AlgorithmVersion,
			string(rec.StrategyFamily),
			rec.RecommendedAt,
			rec.RecommendedPrice,
			rec.ABTestID,
			string(rec.ABArm),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for i := range records {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert record %d: %w", i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListPending returns open records matching the filter, oldest first
func (r *Repository) ListPending(ctx context.Context, f contracts.PendingFilter) ([]contracts.PerformanceRecord, error) {
	conds := []string{"outcome = 'pending'"}
	args := []interface{}{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Symbol != "" {
		add("symbol = $%d", f.Symbol)
	}
	if f.AlgorithmID != "" {
		add("algorithm_id = $%d", f.AlgorithmID)
	}
	if f.Version != "" {
		add("algorithm_version = $%d", f.Version)
	}
	if !f.RecommendedBefore.IsZero() {
		add("recommended_at <= $%d", f.RecommendedBefore)
	}

	query := `SELECT ` + recordColumns + ` FROM seedrank.performance_records
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY recommended_at, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return r.query(ctx, query, args...)
}

// CloseRecord closes a record only while it is still pending
func (r *Repository) CloseRecord(ctx context.Context, rec contracts.PerformanceRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE seedrank.performance_records
		SET outcome = $2, evaluated_at = $3, evaluated_price = $4, return_pct = $5
		WHERE id = $1 AND outcome = 'pending'
	`, rec.ID, string(rec.Outcome), rec.EvaluatedAt, rec.EvaluatedPrice, rec.ReturnPct)
	if err != nil {
		return false, fmt.Errorf("failed to close record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByAlgorithm returns every record of an algorithm version
func (r *Repository) ListByAlgorithm(ctx context.Context, algorithmID, version string) ([]contracts.PerformanceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM seedrank.performance_records
		WHERE algorithm_id = $1 AND ($2 = '' OR algorithm_version = $2)
		ORDER BY recommended_at, id`
	return r.query(ctx, query, algorithmID, version)
}

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]contracts.PerformanceRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	results := make([]contracts.PerformanceRecord, 0)
	for rows.Next() {
		var rec contracts.PerformanceRecord
		var family, outcome, arm string

		err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Symbol,
			&rec.AlgorithmID,
			&rec.AlgorithmVersion,
			&family,
			&rec.RecommendedAt,
			&rec.RecommendedPrice,
			&rec.EvaluatedAt,
			&rec.EvaluatedPrice,
			&outcome,
			&rec.ReturnPct,
			&rec.ABTestID,
			&arm,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.StrategyFamily = contracts.StrategyFamily(family)
		rec.Outcome = contracts.Outcome(outcome)
		rec.ABArm = contracts.ABArm(arm)
		results = append(results, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}
