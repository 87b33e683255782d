package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// UpsertMarket writes or refreshes one market's reference data.
func (s *Store) UpsertMarket(ctx context.Context, m types.MarketSpec) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO markets (symbol, point_value, tick_size, correlation_group, asset_class, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol) DO UPDATE SET
			point_value = EXCLUDED.point_value,
			tick_size = EXCLUDED.tick_size,
			correlation_group = EXCLUDED.correlation_group,
			asset_class = EXCLUDED.asset_class,
			active = EXCLUDED.active`,
		m.Symbol, m.PointValue.String(), m.TickSize.String(), m.CorrelationGroup, m.AssetClass, m.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting market %s: %w", m.Symbol, err)
	}
	return nil
}

// ActiveMarkets returns the tradeable universe sorted by symbol.
func (s *Store) ActiveMarkets(ctx context.Context) ([]types.MarketSpec, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, point_value::text, tick_size::text, correlation_group, asset_class, active
		FROM markets WHERE active ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("querying markets: %w", err)
	}
	defer rows.Close()

	var out []types.MarketSpec
	for rows.Next() {
		var m types.MarketSpec
		var pointValue, tickSize string
		if err := rows.Scan(&m.Symbol, &pointValue, &tickSize, &m.CorrelationGroup, &m.AssetClass, &m.Active); err != nil {
			return nil, fmt.Errorf("scanning market: %w", err)
		}
		if m.PointValue, err = decimal.NewFromString(pointValue); err != nil {
			return nil, fmt.Errorf("parsing point value for %s: %w", m.Symbol, err)
		}
		if m.TickSize, err = decimal.NewFromString(tickSize); err != nil {
			return nil, fmt.Errorf("parsing tick size for %s: %w", m.Symbol, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Market returns one market's spec.
func (s *Store) Market(ctx context.Context, symbol string) (types.MarketSpec, error) {
	var m types.MarketSpec
	var pointValue, tickSize string
	err := s.pool.QueryRow(ctx, `
		SELECT symbol, point_value::text, tick_size::text, correlation_group, asset_class, active
		FROM markets WHERE symbol = $1`, symbol).
		Scan(&m.Symbol, &pointValue, &tickSize, &m.CorrelationGroup, &m.AssetClass, &m.Active)
	if err != nil {
		return types.MarketSpec{}, fmt.Errorf("loading market %s: %w", symbol, err)
	}
	if m.PointValue, err = decimal.NewFromString(pointValue); err != nil {
		return types.MarketSpec{}, fmt.Errorf("parsing point value for %s: %w", symbol, err)
	}
	if m.TickSize, err = decimal.NewFromString(tickSize); err != nil {
		return types.MarketSpec{}, fmt.Errorf("parsing tick size for %s: %w", symbol, err)
	}
	return m, nil
}
