package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

func optDecimal(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	v := d.String()
	return &v
}

func parseOptDecimal(s *string, field string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	v, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", field, err)
	}
	return &v, nil
}

// UpsertOpenPosition writes the live snapshot for a symbol.
func (s *Store) UpsertOpenPosition(ctx context.Context, r types.OpenPositionRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO open_positions
			(symbol, direction, system, entry_price, entry_date, contracts, units,
			 current_price, stop_price, unrealized_pnl, n_value, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (symbol) DO UPDATE SET
			direction = EXCLUDED.direction,
			system = EXCLUDED.system,
			entry_price = EXCLUDED.entry_price,
			entry_date = EXCLUDED.entry_date,
			contracts = EXCLUDED.contracts,
			units = EXCLUDED.units,
			current_price = EXCLUDED.current_price,
			stop_price = EXCLUDED.stop_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			n_value = EXCLUDED.n_value,
			updated_at = EXCLUDED.updated_at`,
		r.Symbol, string(r.Direction), string(r.System), r.EntryPrice.String(), r.EntryDate,
		r.Contracts, r.Units, optDecimal(r.CurrentPrice), optDecimal(r.StopPrice),
		optDecimal(r.UnrealizedPnL), optDecimal(r.NValue), r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting open position %s: %w", r.Symbol, err)
	}
	return nil
}

// DeleteOpenPosition removes the snapshot when a position closes.
func (s *Store) DeleteOpenPosition(ctx context.Context, symbol string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM open_positions WHERE symbol = $1`, symbol); err != nil {
		return fmt.Errorf("deleting open position %s: %w", symbol, err)
	}
	return nil
}

// OpenPositions returns every persisted snapshot, sorted by symbol.
func (s *Store) OpenPositions(ctx context.Context) ([]types.OpenPositionRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, direction, system, entry_price::text, entry_date, contracts, units,
		       current_price::text, stop_price::text, unrealized_pnl::text, n_value::text, updated_at
		FROM open_positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("querying open positions: %w", err)
	}
	defer rows.Close()

	var out []types.OpenPositionRow
	for rows.Next() {
		var r types.OpenPositionRow
		var dir, sys, entryPrice string
		var current, stop, upnl, nv *string
		if err := rows.Scan(&r.Symbol, &dir, &sys, &entryPrice, &r.EntryDate, &r.Contracts,
			&r.Units, &current, &stop, &upnl, &nv, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning open position: %w", err)
		}
		r.Direction = types.Direction(dir)
		r.System = types.System(sys)
		if r.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
			return nil, fmt.Errorf("parsing entry price for %s: %w", r.Symbol, err)
		}
		if r.CurrentPrice, err = parseOptDecimal(current, "current price"); err != nil {
			return nil, err
		}
		if r.StopPrice, err = parseOptDecimal(stop, "stop price"); err != nil {
			return nil, err
		}
		if r.UnrealizedPnL, err = parseOptDecimal(upnl, "unrealized pnl"); err != nil {
			return nil, err
		}
		if r.NValue, err = parseOptDecimal(nv, "n value"); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
