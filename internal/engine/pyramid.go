package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/broker"
	"github.com/donchian-labs/turtle-engine/internal/events"
	"github.com/donchian-labs/turtle-engine/internal/limits"
	"github.com/donchian-labs/turtle-engine/internal/sizing"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// executePyramid adds one unit to a winning position and advances the
// shared stop over every existing unit. Sizing uses current N and
// current notional equity, not the values at the original entry.
func (e *Engine) executePyramid(ctx context.Context, cp checkedPosition) error {
	pos, md := cp.pos, cp.md
	if e.reconcileNeeded(pos.Symbol) {
		e.emit(ctx, events.TypeEntrySkipped, events.OutcomeBlocked, pos.Symbol, map[string]any{
			"reason": "symbol awaiting reconciliation",
		})
		return nil
	}
	notional := e.tracker.Snapshot().NotionalEquity

	size := e.sizer.Size(notional, md.N.Value, pos.Spec)
	if !size.Tradeable {
		e.emit(ctx, events.TypeEntrySkipped, events.OutcomeSkipped, pos.Symbol, map[string]any{
			"reason": "zero size for pyramid unit",
		})
		return nil
	}

	verdict := e.checker.Check(e.book.Exposure(e.rules), limits.Candidate{
		Symbol:           pos.Symbol,
		CorrelationGroup: pos.Spec.CorrelationGroup,
		UnitRisk:         size.StopRisk.Mul(decimal.NewFromInt(size.Contracts)),
	}, notional)
	if !verdict.Allowed {
		if e.metrics != nil {
			e.metrics.EntriesBlocked.WithLabelValues("limit").Inc()
		}
		e.emit(ctx, events.TypeEntrySkipped, events.OutcomeBlocked, pos.Symbol, map[string]any{
			"reason": verdict.Reason,
		})
		return nil
	}

	// The new stop protects the whole position, old units included. If
	// N has widened enough that 2N off the new entry sits behind the
	// stop already in place, the existing stop holds; it never loosens.
	provisionalStop := advanceOnly(
		sizing.StopPrice(md.CurrentPrice, md.N.Value, pos.Direction, e.rules.StopMultiplier),
		pos.CurrentStop, pos.Direction)

	fill, err := e.broker.PlaceBracketOrder(ctx, broker.BracketOrder{
		Symbol:    pos.Symbol,
		Direction: pos.Direction,
		Contracts: size.Contracts,
		StopPrice: provisionalStop,
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.BrokerErrors.WithLabelValues(brokerErrorClass(err)).Inc()
		}
		e.emit(ctx, events.TypeOrderRejected, events.OutcomeFailed, pos.Symbol, map[string]any{
			"error": err.Error(),
		})
		if errors.Is(err, types.ErrReconciliationRequired) {
			e.markReconcileNeeded(ctx, pos.Symbol, err)
		}
		return fmt.Errorf("pyramid order for %s: %w", pos.Symbol, err)
	}

	newStop := advanceOnly(
		sizing.StopPrice(fill.Price, md.N.Value, pos.Direction, e.rules.StopMultiplier),
		pos.CurrentStop, pos.Direction)
	if err := e.broker.ModifyStop(ctx, pos.Symbol, newStop); err != nil {
		e.logger.Error("stop advance failed after pyramid fill",
			zap.String("symbol", pos.Symbol),
			zap.String("new_stop", newStop.String()),
			zap.Error(err),
		)
		e.emit(ctx, events.TypeSymbolError, events.OutcomeFailed, pos.Symbol, map[string]any{
			"error": fmt.Sprintf("stop advance failed: %v", err),
		})
	}

	level := types.PyramidLevel{
		UnitNumber:   pos.TotalUnits() + 1,
		EntryPrice:   fill.Price,
		EntryTime:    fill.FilledAt,
		NAtEntry:     md.N.Value,
		Contracts:    fill.Contracts,
		OriginalStop: newStop,
	}
	if err := pos.AppendPyramid(level, newStop); err != nil {
		return fmt.Errorf("appending pyramid level for %s: %w", pos.Symbol, err)
	}

	if trade := e.openTrade(pos.Symbol); trade != nil {
		trade.PyramidLevels = pos.Levels
		trade.CommissionTotal = trade.CommissionTotal.Add(e.commissionFor(fill.Contracts))
		if err := e.repo.UpdateTradeLevels(ctx, trade.ID, pos.Levels); err != nil {
			e.logger.Error("trade level update failed",
				zap.String("symbol", pos.Symbol),
				zap.Error(err),
			)
		}
	}
	e.persistPositionSnapshot(ctx, pos, md)

	price := fill.Price
	e.alert(ctx, types.Alert{
		Symbol:    pos.Symbol,
		AlertType: types.AlertPyramidTrigger,
		Direction: pos.Direction,
		System:    pos.System,
		Price:     &price,
		Details:   fmt.Sprintf("added unit %d, stop to %s", level.UnitNumber, newStop),
	})
	e.emit(ctx, events.TypePyramidAdded, events.OutcomeOK, pos.Symbol, map[string]any{
		"unit":      level.UnitNumber,
		"contracts": fill.Contracts,
		"entry":     fill.Price.String(),
	})
	e.emit(ctx, events.TypeStopAdvanced, events.OutcomeOK, pos.Symbol, map[string]any{
		"stop":  newStop.String(),
		"units": pos.TotalUnits(),
	})
	return nil
}

// advanceOnly clamps a recomputed stop so it never retreats behind the
// protection already in place.
func advanceOnly(stop, current decimal.Decimal, dir types.Direction) decimal.Decimal {
	if dir == types.DirectionLong && stop.LessThan(current) {
		return current
	}
	if dir == types.DirectionShort && stop.GreaterThan(current) {
		return current
	}
	return stop
}
