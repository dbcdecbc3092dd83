package database

import (
	"context"
	"fmt"
)

// schema is applied in order by Migrate. Every statement is idempotent.
// ⭐ SSOT: 추천 엔진 테이블 정의는 여기서만 관리
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS seedrank`,

	`CREATE TABLE IF NOT EXISTS seedrank.algorithm_configs (
		algorithm_id    TEXT        NOT NULL,
		version         TEXT        NOT NULL,
		variant         TEXT        NOT NULL,
		strategy_family TEXT        NOT NULL,
		parameters      JSONB       NOT NULL DEFAULT '{}'::jsonb,
		enabled         BOOLEAN     NOT NULL DEFAULT TRUE,
		weight          DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		is_active       BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (algorithm_id, version)
	)`,
	// 패밀리별 알고리즘당 활성 버전은 최대 1개
	`CREATE UNIQUE INDEX IF NOT EXISTS algorithm_configs_one_active
		ON seedrank.algorithm_configs (algorithm_id, strategy_family)
		WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS seedrank.version_events (
		seq             BIGSERIAL   PRIMARY KEY,
		id              TEXT        NOT NULL UNIQUE,
		kind            TEXT        NOT NULL,
		algorithm_id    TEXT        NOT NULL,
		strategy_family TEXT        NOT NULL,
		from_version    TEXT        NOT NULL DEFAULT '',
		to_version      TEXT        NOT NULL,
		at              TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS version_events_family_at
		ON seedrank.version_events (strategy_family, seq)`,

	`CREATE TABLE IF NOT EXISTS seedrank.ab_tests (
		test_id            TEXT        PRIMARY KEY,
		strategy_family    TEXT        NOT NULL,
		algorithm_id       TEXT        NOT NULL,
		control_version    TEXT        NOT NULL,
		challenger_version TEXT        NOT NULL,
		traffic_split      DOUBLE PRECISION NOT NULL,
		status             TEXT        NOT NULL,
		started_at         TIMESTAMPTZ NOT NULL,
		ended_at           TIMESTAMPTZ,
		outcome_summary    JSONB
	)`,
	// 패밀리당 실행 중인 테스트는 최대 1개
	`CREATE UNIQUE INDEX IF NOT EXISTS ab_tests_one_running
		ON seedrank.ab_tests (strategy_family)
		WHERE status = 'running'`,

	`CREATE TABLE IF NOT EXISTS seedrank.ab_outcomes (
		test_id     TEXT        NOT NULL,
		record_id   TEXT        NOT NULL,
		arm         TEXT        NOT NULL,
		outcome     TEXT        NOT NULL,
		return_pct  DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (test_id, record_id)
	)`,

	`CREATE TABLE IF NOT EXISTS seedrank.recommendation_batches (
		run_id          TEXT        PRIMARY KEY,
		strategy_family TEXT        NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		recommendations JSONB       NOT NULL,
		metadata        JSONB       NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS seedrank.performance_records (
		id                TEXT        PRIMARY KEY,
		run_id            TEXT        NOT NULL,
		symbol            TEXT        NOT NULL,
		algorithm_id      TEXT        NOT NULL,
		algorithm_version TEXT        NOT NULL,
		strategy_family   TEXT        NOT NULL,
		recommended_at    TIMESTAMPTZ NOT NULL,
		recommended_price DOUBLE PRECISION NOT NULL,
		evaluated_at      TIMESTAMPTZ,
		evaluated_price   DOUBLE PRECISION,
		outcome           TEXT        NOT NULL DEFAULT 'pending',
		return_pct        DOUBLE PRECISION,
		ab_test_id        TEXT        NOT NULL DEFAULT '',
		ab_arm            TEXT        NOT NULL DEFAULT '',
		UNIQUE (symbol, algorithm_id, algorithm_version, recommended_at)
	)`,
	`CREATE INDEX IF NOT EXISTS performance_records_pending
		ON seedrank.performance_records (recommended_at)
		WHERE outcome = 'pending'`,
}

// Migrate applies the schema inside one transaction
func (db *DB) Migrate(ctx context.Context) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
