package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// InsertTrade writes a freshly opened trade.
func (s *Store) InsertTrade(ctx context.Context, t types.Trade) error {
	levels, err := json.Marshal(t.PyramidLevels)
	if err != nil {
		return fmt.Errorf("encoding pyramid levels: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO trades
			(id, symbol, system, direction, entry_date, entry_price, n_at_entry,
			 initial_stop, pyramid_levels, max_units, commission_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Symbol, string(t.System), string(t.Direction), t.EntryDate,
		t.EntryPrice.String(), t.NAtEntry.String(), t.InitialStop.String(),
		levels, t.MaxUnits, t.CommissionTotal.String(),
	)
	if err != nil {
		return fmt.Errorf("inserting trade %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTradeLevels refreshes the embedded pyramid levels after an add.
func (s *Store) UpdateTradeLevels(ctx context.Context, tradeID string, levels []types.PyramidLevel) error {
	raw, err := json.Marshal(levels)
	if err != nil {
		return fmt.Errorf("encoding pyramid levels: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE trades SET pyramid_levels = $2 WHERE id = $1`, tradeID, raw)
	if err != nil {
		return fmt.Errorf("updating trade %s levels: %w", tradeID, err)
	}
	return nil
}

// CloseTrade records the exit and settles P&L.
func (s *Store) CloseTrade(ctx context.Context, t types.Trade) error {
	if !t.Closed() {
		return fmt.Errorf("trade %s has no exit", t.ID)
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE trades SET
			exit_date = $2, exit_price = $3, exit_reason = $4,
			realized_pnl = $5, net_pnl = $6, commission_total = $7
		WHERE id = $1`,
		t.ID, t.ExitDate, optDecimal(t.ExitPrice), string(t.ExitReason),
		optDecimal(t.RealizedPnL), optDecimal(t.NetPnL), t.CommissionTotal.String(),
	)
	if err != nil {
		return fmt.Errorf("closing trade %s: %w", t.ID, err)
	}

	// Rollovers are administrative exits; they do not count for or
	// against the last-winner filter.
	if t.System == types.SystemOne && t.ExitReason != types.ExitReasonRollover {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO s1_filter_history (symbol, trade_id, was_winner)
			VALUES ($1, $2, $3)`,
			t.Symbol, t.ID, t.WasWinner(),
		)
		if err != nil {
			return fmt.Errorf("recording s1 filter history for %s: %w", t.ID, err)
		}
	}
	return nil
}

// LastClosedTrade returns the most recently exited trade for the
// symbol and system, or nil when none exists. Satisfies the s1 filter's
// TradeHistory interface. S1 trades closed by a contract rollover are
// invisible here: a roll is an administrative exit, not a trade
// outcome, so it must not feed the last-winner filter.
func (s *Store) LastClosedTrade(ctx context.Context, symbol string, system types.System) (*types.Trade, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, symbol, system, direction, entry_date, entry_price::text,
		       n_at_entry::text, initial_stop::text, pyramid_levels, max_units,
		       exit_date, exit_price::text, exit_reason,
		       realized_pnl::text, commission_total::text, net_pnl::text
		FROM trades
		WHERE symbol = $1 AND system = $2 AND exit_date IS NOT NULL
		  AND NOT (system = 'S1' AND exit_reason = 'ROLLOVER')
		ORDER BY exit_date DESC LIMIT 1`,
		symbol, string(system))

	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading last closed trade for %s/%s: %w", symbol, system, err)
	}
	return t, nil
}

// OpenTrades returns every trade without an exit, oldest first. The
// engine rebuilds its book from these at startup.
func (s *Store) OpenTrades(ctx context.Context) ([]types.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, system, direction, entry_date, entry_price::text,
		       n_at_entry::text, initial_stop::text, pyramid_levels, max_units,
		       exit_date, exit_price::text, exit_reason,
		       realized_pnl::text, commission_total::text, net_pnl::text
		FROM trades
		WHERE exit_date IS NULL
		ORDER BY entry_date`)
	if err != nil {
		return nil, fmt.Errorf("querying open trades: %w", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning open trade: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTrade(row pgx.Row) (*types.Trade, error) {
	var t types.Trade
	var sys, dir string
	var entryPrice, nAtEntry, initialStop, commission string
	var exitPrice, realized, net, exitReason *string
	var levels []byte

	err := row.Scan(&t.ID, &t.Symbol, &sys, &dir, &t.EntryDate, &entryPrice,
		&nAtEntry, &initialStop, &levels, &t.MaxUnits,
		&t.ExitDate, &exitPrice, &exitReason, &realized, &commission, &net)
	if err != nil {
		return nil, err
	}

	t.System = types.System(sys)
	t.Direction = types.Direction(dir)
	if t.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
		return nil, fmt.Errorf("parsing entry price: %w", err)
	}
	if t.NAtEntry, err = decimal.NewFromString(nAtEntry); err != nil {
		return nil, fmt.Errorf("parsing n at entry: %w", err)
	}
	if t.InitialStop, err = decimal.NewFromString(initialStop); err != nil {
		return nil, fmt.Errorf("parsing initial stop: %w", err)
	}
	if t.CommissionTotal, err = decimal.NewFromString(commission); err != nil {
		return nil, fmt.Errorf("parsing commission: %w", err)
	}
	if err := json.Unmarshal(levels, &t.PyramidLevels); err != nil {
		return nil, fmt.Errorf("decoding pyramid levels: %w", err)
	}
	if exitReason != nil {
		t.ExitReason = types.ExitReason(*exitReason)
	}
	if exitPrice != nil {
		v, err := decimal.NewFromString(*exitPrice)
		if err != nil {
			return nil, fmt.Errorf("parsing exit price: %w", err)
		}
		t.ExitPrice = &v
	}
	if realized != nil {
		v, err := decimal.NewFromString(*realized)
		if err != nil {
			return nil, fmt.Errorf("parsing realized pnl: %w", err)
		}
		t.RealizedPnL = &v
	}
	if net != nil {
		v, err := decimal.NewFromString(*net)
		if err != nil {
			return nil, fmt.Errorf("parsing net pnl: %w", err)
		}
		t.NetPnL = &v
	}
	return &t, nil
}
