package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// IndicatorRow is the persisted indicator snapshot for one symbol-day.
type IndicatorRow struct {
	Symbol   string
	CalcDate time.Time
	N        decimal.Decimal
	DC10     types.DonchianChannel
	DC20     types.DonchianChannel
	DC55     types.DonchianChannel
}

// SaveIndicators records a day's calculation. Rerunning a scan for the
// same day overwrites the row.
func (s *Store) SaveIndicators(ctx context.Context, r IndicatorRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calculated_indicators
			(symbol, calc_date, n_value, dc10_high, dc10_low, dc20_high, dc20_low, dc55_high, dc55_low)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, calc_date) DO UPDATE SET
			n_value = EXCLUDED.n_value,
			dc10_high = EXCLUDED.dc10_high, dc10_low = EXCLUDED.dc10_low,
			dc20_high = EXCLUDED.dc20_high, dc20_low = EXCLUDED.dc20_low,
			dc55_high = EXCLUDED.dc55_high, dc55_low = EXCLUDED.dc55_low`,
		r.Symbol, r.CalcDate, r.N.String(),
		r.DC10.Upper.String(), r.DC10.Lower.String(),
		r.DC20.Upper.String(), r.DC20.Lower.String(),
		r.DC55.Upper.String(), r.DC55.Lower.String(),
	)
	if err != nil {
		return fmt.Errorf("saving indicators for %s: %w", r.Symbol, err)
	}
	return nil
}

// LatestN returns the most recent persisted N for a symbol, or nil
// when the series has never been seeded.
func (s *Store) LatestN(ctx context.Context, symbol string) (*types.NValue, error) {
	var nStr string
	var calcDate time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT n_value::text, calc_date FROM calculated_indicators
		WHERE symbol = $1 ORDER BY calc_date DESC LIMIT 1`, symbol).
		Scan(&nStr, &calcDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest n for %s: %w", symbol, err)
	}
	value, err := decimal.NewFromString(nStr)
	if err != nil {
		return nil, fmt.Errorf("parsing n for %s: %w", symbol, err)
	}
	return &types.NValue{Value: value, CalculatedAt: calcDate}, nil
}
