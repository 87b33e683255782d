// Package storage persists engine state to Postgres through pgx. All
// decimal values travel as strings and live in NUMERIC columns; binary
// floats never touch a price.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store wraps a pgx pool with the engine's repositories. One Store
// serves every repository; they are just method groups on it.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects and pings the database.
func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// migrations run in order inside one transaction each. Statements are
// idempotent so setup-db can rerun safely.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS markets (
		symbol            TEXT PRIMARY KEY,
		point_value       NUMERIC(20,8) NOT NULL,
		tick_size         NUMERIC(20,8) NOT NULL,
		correlation_group TEXT NOT NULL DEFAULT '',
		asset_class       TEXT NOT NULL DEFAULT '',
		active            BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS calculated_indicators (
		symbol     TEXT NOT NULL REFERENCES markets(symbol),
		calc_date  DATE NOT NULL,
		n_value    NUMERIC(20,8) NOT NULL,
		dc10_high  NUMERIC(20,8) NOT NULL,
		dc10_low   NUMERIC(20,8) NOT NULL,
		dc20_high  NUMERIC(20,8) NOT NULL,
		dc20_low   NUMERIC(20,8) NOT NULL,
		dc55_high  NUMERIC(20,8) NOT NULL,
		dc55_low   NUMERIC(20,8) NOT NULL,
		UNIQUE (symbol, calc_date)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id               UUID PRIMARY KEY,
		symbol           TEXT NOT NULL,
		system           TEXT NOT NULL,
		direction        TEXT NOT NULL,
		entry_date       TIMESTAMPTZ NOT NULL,
		entry_price      NUMERIC(20,8) NOT NULL,
		n_at_entry       NUMERIC(20,8) NOT NULL,
		initial_stop     NUMERIC(20,8) NOT NULL,
		pyramid_levels   JSONB NOT NULL DEFAULT '[]',
		max_units        INTEGER NOT NULL,
		exit_date        TIMESTAMPTZ,
		exit_price       NUMERIC(20,8),
		exit_reason      TEXT,
		realized_pnl     NUMERIC(20,8),
		commission_total NUMERIC(20,8) NOT NULL DEFAULT 0,
		net_pnl          NUMERIC(20,8)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol_system
		ON trades (symbol, system, exit_date DESC)`,
	`CREATE TABLE IF NOT EXISTS s1_filter_history (
		symbol      TEXT NOT NULL,
		trade_id    UUID NOT NULL REFERENCES trades(id),
		was_winner  BOOLEAN NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id           UUID PRIMARY KEY,
		timestamp    TIMESTAMPTZ NOT NULL,
		symbol       TEXT NOT NULL,
		alert_type   TEXT NOT NULL,
		direction    TEXT,
		system       TEXT,
		price        NUMERIC(20,8),
		details      TEXT NOT NULL DEFAULT '',
		acknowledged BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS open_positions (
		symbol         TEXT PRIMARY KEY,
		direction      TEXT NOT NULL,
		system         TEXT NOT NULL,
		entry_price    NUMERIC(20,8) NOT NULL,
		entry_date     TIMESTAMPTZ NOT NULL,
		contracts      BIGINT NOT NULL,
		units          INTEGER NOT NULL,
		current_price  NUMERIC(20,8),
		stop_price     NUMERIC(20,8),
		unrealized_pnl NUMERIC(20,8),
		n_value        NUMERIC(20,8),
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id         UUID PRIMARY KEY,
		timestamp  TIMESTAMPTZ NOT NULL,
		event_type TEXT NOT NULL,
		outcome    TEXT NOT NULL,
		run_id     UUID NOT NULL,
		sequence   BIGINT NOT NULL,
		symbol     TEXT,
		context    JSONB,
		source     TEXT NOT NULL,
		dry_run    BOOLEAN NOT NULL,
		UNIQUE (run_id, sequence)
	)`,
}

// Migrate applies the schema, statement by statement, in order.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	s.logger.Info("schema migrated", zap.Int("statements", len(migrations)))
	return nil
}
