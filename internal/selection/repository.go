package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/seedrank/backend/internal/contracts"
)

// BatchRepository persists append-only recommendation batches
// ⭐ SSOT: 추천 배치 저장/조회는 여기서만
type BatchRepository struct {
	pool *pgxpool.Pool
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepository {
	return &BatchRepository{pool: pool}
}

// SaveBatch inserts a batch; a repeated run id is ignored
func (r *BatchRepository) SaveBatch(ctx context.Context, batch contracts.RecommendationBatch) error {
	recsJSON, err := json.Marshal(batch.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	metaJSON, err := json.Marshal(batch.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO seedrank.recommendation_batches (
			run_id, strategy_family, created_at, recommendations, metadata
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query, batch.RunID, string(batch.StrategyFamily), batch.CreatedAt, recsJSON, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to save recommendation batch: %w", err)
	}
	return nil
}

// GetBatch retrieves one batch by run id
func (r *BatchRepository) GetBatch(ctx context.Context, runID string) (*contracts.RecommendationBatch, error) {
	query := `
		SELECT run_id, strategy_family, created_at, recommendations, metadata
		FROM seedrank.recommendation_batches
		WHERE run_id = $1
	`

	batch, err := scanBatch(r.pool.QueryRow(ctx, query, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", runID, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, nil
}

// ListBatches returns the latest batches of a family, newest first
func (r *BatchRepository) ListBatches(ctx context.Context, family contracts.StrategyFamily, limit int) ([]contracts.RecommendationBatch, error) {
	query := `
		SELECT run_id, strategy_family, created_at, recommendations, metadata
		FROM seedrank.recommendation_batches
		WHERE strategy_family = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, string(family), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	results := make([]contracts.RecommendationBatch, 0)
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, *batch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

func scanBatch(row pgx.Row) (*contracts.RecommendationBatch, error) {
	var batch contracts.RecommendationBatch
	var family string
	var recsJSON, metaJSON []byte

	if err := row.Scan(&batch.RunID, &family, &batch.CreatedAt, &recsJSON, &metaJSON); err != nil {
		return nil, err
	}
	batch.StrategyFamily = contracts.StrategyFamily(family)

	if err := json.Unmarshal(recsJSON, &batch.Recommendations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recommendations: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &batch.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &batch, nil
}
