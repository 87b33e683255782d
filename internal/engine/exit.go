package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/events"
	"github.com/donchian-labs/turtle-engine/internal/position"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// executeExit closes all contracts of a position at market, settles
// the trade record and clears every trace of the position.
func (e *Engine) executeExit(ctx context.Context, cp checkedPosition) error {
	pos := cp.pos
	reason := exitReason(cp.decision.Action)

	fill, err := e.broker.ClosePosition(ctx, pos.Symbol)
	if err != nil {
		if e.metrics != nil {
			e.metrics.BrokerErrors.WithLabelValues(brokerErrorClass(err)).Inc()
		}
		e.emit(ctx, events.TypeOrderRejected, events.OutcomeFailed, pos.Symbol, map[string]any{
			"action": string(cp.decision.Action),
			"error":  err.Error(),
		})
		if errors.Is(err, types.ErrReconciliationRequired) {
			e.markReconcileNeeded(ctx, pos.Symbol, err)
		}
		return fmt.Errorf("closing %s: %w", pos.Symbol, err)
	}

	if err := pos.Close(); err != nil {
		return fmt.Errorf("closing aggregate %s: %w", pos.Symbol, err)
	}
	e.book.Remove(pos.Symbol)
	e.mu.Lock()
	delete(e.lastSnapshots, pos.Symbol)
	e.mu.Unlock()

	realized := realizedPnL(pos, fill.Price)
	exitTime := fill.FilledAt
	if exitTime.IsZero() {
		exitTime = time.Now().UTC()
	}

	trade := e.openTrade(pos.Symbol)
	if trade == nil {
		// Position predates this process (restored from the broker);
		// synthesize the audit record so the exit is still on file.
		trade = &types.Trade{
			ID:          pos.ID,
			Symbol:      pos.Symbol,
			System:      pos.System,
			Direction:   pos.Direction,
			EntryDate:   pos.OpenedAt,
			EntryPrice:  pos.Levels[0].EntryPrice,
			NAtEntry:    pos.Levels[0].NAtEntry,
			InitialStop: pos.Levels[0].OriginalStop,
			MaxUnits:    e.rules.MaxUnitsPerMarket,
		}
		if err := e.repo.InsertTrade(ctx, *trade); err != nil {
			e.logger.Error("synthesized trade insert failed",
				zap.String("symbol", pos.Symbol),
				zap.Error(err),
			)
		}
	}
	trade.PyramidLevels = pos.Levels
	trade.ExitDate = &exitTime
	exitPrice := fill.Price
	trade.ExitPrice = &exitPrice
	trade.ExitReason = reason
	trade.CommissionTotal = trade.CommissionTotal.Add(e.commissionFor(fill.Contracts))
	trade.RealizedPnL = &realized
	net := realized.Sub(trade.CommissionTotal)
	trade.NetPnL = &net

	if err := e.repo.CloseTrade(ctx, *trade); err != nil {
		e.logger.Error("trade close write failed",
			zap.String("symbol", pos.Symbol),
			zap.Error(err),
		)
	}
	e.setTrade(pos.Symbol, nil)

	if err := e.repo.DeleteOpenPosition(ctx, pos.Symbol); err != nil {
		e.logger.Error("open position delete failed",
			zap.String("symbol", pos.Symbol),
			zap.Error(err),
		)
	}
	if err := e.broker.CancelAllOrders(ctx, pos.Symbol); err != nil {
		e.logger.Warn("order cleanup failed",
			zap.String("symbol", pos.Symbol),
			zap.Error(err),
		)
	}

	price := fill.Price
	e.alert(ctx, types.Alert{
		Symbol:    pos.Symbol,
		AlertType: exitAlertType(cp.decision.Action),
		Direction: pos.Direction,
		System:    pos.System,
		Price:     &price,
		Details:   cp.decision.Reason,
	})
	e.alert(ctx, types.Alert{
		Symbol:    pos.Symbol,
		AlertType: types.AlertPositionClosed,
		Direction: pos.Direction,
		System:    pos.System,
		Price:     &price,
		Details:   fmt.Sprintf("net pnl %s", net),
	})
	e.emit(ctx, events.TypePositionClosed, events.OutcomeOK, pos.Symbol, map[string]any{
		"reason":    string(reason),
		"trigger":   cp.decision.TriggerPrice.String(),
		"fill":      fill.Price.String(),
		"units":     pos.TotalUnits(),
		"contracts": pos.TotalContracts(),
		"realized":  realized.String(),
		"net":       net.String(),
	})
	return nil
}

func exitReason(a position.Action) types.ExitReason {
	if a == position.ActionExitStop {
		return types.ExitReasonStopHit
	}
	return types.ExitReasonBreakoutExit
}

func exitAlertType(a position.Action) types.AlertType {
	if a == position.ActionExitStop {
		return types.AlertExitStop
	}
	return types.AlertExitBreakout
}

// realizedPnL values the round trip at the exit fill, before
// commissions.
func realizedPnL(pos *position.Position, exitPrice decimal.Decimal) decimal.Decimal {
	diff := exitPrice.Sub(pos.AverageEntry())
	if pos.Direction == types.DirectionShort {
		diff = diff.Neg()
	}
	return diff.Mul(pos.Spec.PointValue).Mul(decimal.NewFromInt(pos.TotalContracts()))
}
