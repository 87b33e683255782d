package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/events"
	"github.com/donchian-labs/turtle-engine/internal/position"
	"github.com/donchian-labs/turtle-engine/internal/workers"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// CycleReport summarizes one monitor pass.
type CycleReport struct {
	Checked  int
	Exits    int
	Pyramids int
	Holds    int
	Errors   int
}

type checkedPosition struct {
	pos      *position.Position
	md       types.MarketData
	decision position.Decision
}

// MonitorLoop runs cycles every interval until the context is
// cancelled. Cancellation is honored between cycles, never mid-cycle;
// a half-applied pyramid protocol is worse than a late shutdown.
func (e *Engine) MonitorLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("monitor loop started", zap.Duration("interval", interval))
	for {
		if _, err := e.MonitorCycle(context.WithoutCancel(ctx)); err != nil {
			e.logger.Error("monitor cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			e.logger.Info("monitor loop stopping")
			return
		case <-ticker.C:
		}
	}
}

// MonitorCycle checks every open position once. All exits are applied
// before any pyramid; exits free limit headroom and shed risk first.
func (e *Engine) MonitorCycle(ctx context.Context) (CycleReport, error) {
	started := time.Now()
	var report CycleReport

	if _, err := e.refreshEquity(ctx); err != nil {
		return report, err
	}

	open := e.book.All()
	if len(open) == 0 {
		return report, nil
	}

	symbols := make([]string, len(open))
	posBySymbol := make(map[string]*position.Position, len(open))
	for i, p := range open {
		symbols[i] = p.Symbol
		posBySymbol[p.Symbol] = p
	}
	now := time.Now().UTC()
	built := workers.ForEachSymbol(ctx, e.pool, symbols, func(ctx context.Context, sym string) (types.MarketData, error) {
		return e.builder.Build(ctx, posBySymbol[sym].Spec, now)
	})

	var exits, pyramids, holds []checkedPosition
	for _, r := range built {
		report.Checked++
		if r.Err != nil {
			report.Errors++
			if e.metrics != nil {
				e.metrics.SymbolErrors.Inc()
			}
			e.logger.Warn("position check skipped",
				zap.String("symbol", r.Symbol),
				zap.Error(r.Err),
			)
			e.emit(ctx, events.TypeSymbolError, events.OutcomeFailed, r.Symbol, map[string]any{
				"error": r.Err.Error(),
			})
			continue
		}

		pos := posBySymbol[r.Symbol]
		decision := position.CheckPosition(pos, r.Value, e.rules)
		if e.metrics != nil {
			e.metrics.MonitorDecisions.WithLabelValues(string(decision.Action)).Inc()
		}
		cp := checkedPosition{pos: pos, md: r.Value, decision: decision}
		switch decision.Action {
		case position.ActionExitStop, position.ActionExitBreakout:
			exits = append(exits, cp)
		case position.ActionPyramid:
			pyramids = append(pyramids, cp)
		default:
			holds = append(holds, cp)
		}
	}

	for _, cp := range exits {
		if err := e.executeExit(ctx, cp); err != nil {
			report.Errors++
			e.logger.Error("exit failed",
				zap.String("symbol", cp.pos.Symbol),
				zap.Error(err),
			)
		} else {
			report.Exits++
		}
	}
	for _, cp := range pyramids {
		if err := e.executePyramid(ctx, cp); err != nil {
			report.Errors++
			e.logger.Error("pyramid failed",
				zap.String("symbol", cp.pos.Symbol),
				zap.Error(err),
			)
		} else {
			report.Pyramids++
		}
	}
	for _, cp := range holds {
		report.Holds++
		e.maybeSnapshot(ctx, cp)
	}

	e.updateBookGauges()
	if e.metrics != nil {
		e.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	}
	e.logger.Info("monitor cycle finished",
		zap.Int("checked", report.Checked),
		zap.Int("exits", report.Exits),
		zap.Int("pyramids", report.Pyramids),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// snapshot write thresholds: half a percent of price or fifty dollars
// of unrealized P&L.
var (
	snapshotPriceDelta = decimal.NewFromFloat(0.005)
	snapshotPnLDelta   = decimal.NewFromInt(50)
)

// maybeSnapshot upserts the open-position row only when something
// meaningful moved since the last persisted snapshot.
func (e *Engine) maybeSnapshot(ctx context.Context, cp checkedPosition) {
	e.mu.Lock()
	last, seen := e.lastSnapshots[cp.pos.Symbol]
	e.mu.Unlock()

	price := cp.md.CurrentPrice
	pnl := cp.pos.UnrealizedPnL(price)
	significant := !seen ||
		!last.stop.Equal(cp.pos.CurrentStop) ||
		priceMoved(last.price, price) ||
		pnl.Sub(last.pnl).Abs().GreaterThan(snapshotPnLDelta)
	if !significant {
		return
	}

	e.persistPositionSnapshot(ctx, cp.pos, cp.md)
}

func priceMoved(prev, current decimal.Decimal) bool {
	if !prev.IsPositive() {
		return true
	}
	return current.Sub(prev).Abs().Div(prev).GreaterThan(snapshotPriceDelta)
}

type snapshotState struct {
	price decimal.Decimal
	pnl   decimal.Decimal
	stop  decimal.Decimal
}

// persistPositionSnapshot writes the open-position row and remembers
// what was written for the significant-change test.
func (e *Engine) persistPositionSnapshot(ctx context.Context, pos *position.Position, md types.MarketData) {
	price := md.CurrentPrice
	pnl := pos.UnrealizedPnL(price)
	stop := pos.CurrentStop
	n := md.N.Value

	row := types.OpenPositionRow{
		Symbol:        pos.Symbol,
		Direction:     pos.Direction,
		System:        pos.System,
		EntryPrice:    pos.AverageEntry(),
		EntryDate:     pos.OpenedAt,
		Contracts:     pos.TotalContracts(),
		Units:         pos.TotalUnits(),
		CurrentPrice:  &price,
		StopPrice:     &stop,
		UnrealizedPnL: &pnl,
		NValue:        &n,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := e.repo.UpsertOpenPosition(ctx, row); err != nil {
		e.logger.Error("position snapshot write failed",
			zap.String("symbol", pos.Symbol),
			zap.Error(err),
		)
		return
	}

	e.mu.Lock()
	e.lastSnapshots[pos.Symbol] = snapshotState{price: price, pnl: pnl, stop: stop}
	e.mu.Unlock()
}

func brokerErrorClass(err error) string {
	switch {
	case errors.Is(err, types.ErrBrokerRejected):
		return "rejected"
	case errors.Is(err, types.ErrBrokerTransient):
		return "transient"
	default:
		return "other"
	}
}
