package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/seedrank/backend/internal/contracts"
)

// Repository is the Postgres ConfigStore
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new config repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListConfigs loads every registered version
func (r *Repository) ListConfigs(ctx context.Context) ([]contracts.AlgorithmConfig, error) {
	query := `
		SELECT algorithm_id, version, variant, strategy_family, parameters,
		       enabled, weight, is_active, created_at
		FROM seedrank.algorithm_configs
		ORDER BY algorithm_id, created_at
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query configs: %w", err)
	}
	defer rows.Close()

	results := make([]contracts.AlgorithmConfig, 0)
	for rows.Next() {
		var cfg contracts.AlgorithmConfig
		var family string
		var params []byte

		err := rows.Scan(
			&cfg.AlgorithmID,
			&cfg.Version,
			&cfg.Variant,
			&family,
			&params,
			&cfg.Enabled,
			&cfg.Weight,
			&cfg.IsActive,
			&cfg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		cfg.StrategyFamily = contracts.StrategyFamily(family)
		if err := json.Unmarshal(params, &cfg.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parameters of %s: %w", cfg.Key(), err)
		}
		results = append(results, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// InsertConfig stores a new version; an existing (id, version) is rejected
func (r *Repository) InsertConfig(ctx context.Context, cfg contracts.AlgorithmConfig) error {
	params := cfg.Parameters
	if params == nil {
		params = contracts.Parameters{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	query := `
		INSERT INTO seedrank.algorithm_configs (
			algorithm_id, version, variant, strategy_family, parameters,
			enabled, weight, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		ON CONFLICT (algorithm_id, version) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		cfg.AlgorithmID,
		cfg.Version,
		cfg.VariantKey(),
		string(cfg.StrategyFamily),
		paramsJSON,
		cfg.Enabled,
		cfg.Weight,
		cfg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", cfg.Key(), contracts.ErrDuplicateVersion)
	}
	return nil
}

// SetActive swaps the active version and records the event in one transaction
func (r *Repository) SetActive(ctx context.Context, ev contracts.VersionEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE seedrank.algorithm_configs
		SET is_active = FALSE
		WHERE algorithm_id = $1 AND strategy_family = $2 AND is_active
	`, ev.AlgorithmID, string(ev.StrategyFamily))
	if err != nil {
		return fmt.Errorf("failed to deactivate: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE seedrank.algorithm_configs
		SET is_active = TRUE
		WHERE algorithm_id = $1 AND version = $2 AND strategy_family = $3
	`, ev.AlgorithmID, ev.ToVersion, string(ev.StrategyFamily))
	if err != nil {
		return fmt.Errorf("failed to activate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s@%s: %w", ev.AlgorithmID, ev.ToVersion, contracts.ErrNotFound)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO seedrank.version_events (
			id, kind, algorithm_id, strategy_family, from_version, to_version, at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, string(ev.Kind), ev.AlgorithmID, string(ev.StrategyFamily), ev.FromVersion, ev.ToVersion, ev.At)
	if err != nil {
		return fmt.Errorf("failed to insert version event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListEvents returns the family's events oldest first
func (r *Repository) ListEvents(ctx context.Context, family contracts.StrategyFamily) ([]contracts.VersionEvent, error) {
	query := `
		SELECT id, kind, algorithm_id, strategy_family, from_version, to_version, at
		FROM seedrank.version_events
		WHERE strategy_family = $1
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, query, string(family))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (contracts.VersionEvent, error) {
		var ev contracts.VersionEvent
		var kind, fam string
		err := row.Scan(&ev.ID, &kind, &ev.AlgorithmID, &fam, &ev.FromVersion, &ev.ToVersion, &ev.At)
		ev.Kind = contracts.VersionEventKind(kind)
		ev.StrategyFamily = contracts.StrategyFamily(fam)
		return ev, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	return events, nil
}
