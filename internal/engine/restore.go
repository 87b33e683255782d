package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/position"
)

// Restore rebuilds the in-memory book from trades that never exited.
// Run it before the first monitor cycle; a process restart must not
// orphan live positions.
func (e *Engine) Restore(ctx context.Context) error {
	trades, err := e.repo.OpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("loading open trades: %w", err)
	}

	for i := range trades {
		t := trades[i]
		spec, err := e.repo.Market(ctx, t.Symbol)
		if err != nil {
			return fmt.Errorf("loading market for open trade %s: %w", t.ID, err)
		}
		pos, err := position.Restore(spec, t)
		if err != nil {
			return err
		}
		if err := e.book.Add(pos); err != nil {
			return fmt.Errorf("restoring %s: %w", t.Symbol, err)
		}
		e.setTrade(t.Symbol, &t)
		e.logger.Info("position restored",
			zap.String("symbol", t.Symbol),
			zap.String("system", string(t.System)),
			zap.Int("units", pos.TotalUnits()),
			zap.String("stop", pos.CurrentStop.String()),
		)
	}

	if len(trades) > 0 {
		e.logger.Info("book restored", zap.Int("positions", len(trades)))
	}
	e.updateBookGauges()
	return nil
}
