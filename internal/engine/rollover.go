package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/broker"
	"github.com/donchian-labs/turtle-engine/internal/events"
	"github.com/donchian-labs/turtle-engine/internal/position"
	"github.com/donchian-labs/turtle-engine/internal/sizing"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// ContractStats is the liquidity picture for one futures contract
// month.
type ContractStats struct {
	Symbol       string
	Volume       int64
	DaysToExpiry int
}

// defaultRollThreshold is how close to expiry a roll happens
// regardless of liquidity.
const defaultRollThreshold = 14

// ShouldRoll applies the roll condition: near expiry, or when the next
// month has taken over the volume.
func ShouldRoll(front, next ContractStats, daysBeforeExpiry int) bool {
	if daysBeforeExpiry <= 0 {
		daysBeforeExpiry = defaultRollThreshold
	}
	if front.DaysToExpiry <= daysBeforeExpiry {
		return true
	}
	return next.Volume > front.Volume
}

// ExecuteRollover moves an open position from the expiring contract to
// the next one: close old, open new with the same contract count and a
// fresh 2N stop. The trade record closes with reason ROLLOVER and the
// S1 filter history is left untouched.
func (e *Engine) ExecuteRollover(ctx context.Context, symbol, newSymbol string, md types.MarketData) error {
	pos := e.book.Get(symbol)
	if pos == nil {
		return fmt.Errorf("no open position in %s to roll", symbol)
	}
	contracts := pos.TotalContracts()

	oldFill, err := e.broker.ClosePosition(ctx, symbol)
	if err != nil {
		if errors.Is(err, types.ErrReconciliationRequired) {
			e.markReconcileNeeded(ctx, symbol, err)
		}
		return fmt.Errorf("rollover close of %s: %w", symbol, err)
	}
	if err := pos.Close(); err != nil {
		return fmt.Errorf("closing aggregate %s: %w", symbol, err)
	}
	e.book.Remove(symbol)

	realized := realizedPnL(pos, oldFill.Price)
	if trade := e.openTrade(symbol); trade != nil {
		exitTime := oldFill.FilledAt
		exitPrice := oldFill.Price
		trade.PyramidLevels = pos.Levels
		trade.ExitDate = &exitTime
		trade.ExitPrice = &exitPrice
		trade.ExitReason = types.ExitReasonRollover
		trade.CommissionTotal = trade.CommissionTotal.Add(e.commissionFor(oldFill.Contracts))
		trade.RealizedPnL = &realized
		net := realized.Sub(trade.CommissionTotal)
		trade.NetPnL = &net
		if err := e.repo.CloseTrade(ctx, *trade); err != nil {
			e.logger.Error("rollover trade close failed",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
		}
		e.setTrade(symbol, nil)
	}
	if err := e.repo.DeleteOpenPosition(ctx, symbol); err != nil {
		e.logger.Error("rollover snapshot delete failed",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}

	newSpec := pos.Spec
	newSpec.Symbol = newSymbol
	newStop := sizing.StopPrice(md.CurrentPrice, md.N.Value, pos.Direction, e.rules.StopMultiplier)

	newFill, err := e.broker.PlaceBracketOrder(ctx, broker.BracketOrder{
		Symbol:    newSymbol,
		Direction: pos.Direction,
		Contracts: contracts,
		StopPrice: newStop,
	})
	if err != nil {
		e.emit(ctx, events.TypeRolloverAlert, events.OutcomeFailed, symbol, map[string]any{
			"new_symbol": newSymbol,
			"error":      err.Error(),
		})
		if errors.Is(err, types.ErrReconciliationRequired) {
			e.markReconcileNeeded(ctx, newSymbol, err)
		}
		return fmt.Errorf("rollover entry into %s: %w", newSymbol, err)
	}

	entryStop := sizing.StopPrice(newFill.Price, md.N.Value, pos.Direction, e.rules.StopMultiplier)
	level := types.PyramidLevel{
		UnitNumber:   1,
		EntryPrice:   newFill.Price,
		EntryTime:    newFill.FilledAt,
		NAtEntry:     md.N.Value,
		Contracts:    newFill.Contracts,
		OriginalStop: entryStop,
	}
	newPos, err := position.Open(newSpec, pos.System, pos.Direction, level, entryStop)
	if err != nil {
		return fmt.Errorf("opening rolled position %s: %w", newSymbol, err)
	}
	if err := e.book.Add(newPos); err != nil {
		return fmt.Errorf("booking rolled position %s: %w", newSymbol, err)
	}

	trade := &types.Trade{
		ID:              newPos.ID,
		Symbol:          newSymbol,
		System:          pos.System,
		Direction:       pos.Direction,
		EntryDate:       newFill.FilledAt,
		EntryPrice:      newFill.Price,
		NAtEntry:        md.N.Value,
		InitialStop:     entryStop,
		PyramidLevels:   newPos.Levels,
		MaxUnits:        e.rules.MaxUnitsPerMarket,
		CommissionTotal: e.commissionFor(newFill.Contracts),
	}
	if err := e.repo.InsertTrade(ctx, *trade); err != nil {
		e.logger.Error("rolled trade insert failed",
			zap.String("symbol", newSymbol),
			zap.Error(err),
		)
	}
	e.setTrade(newSymbol, trade)
	e.persistPositionSnapshot(ctx, newPos, md)

	e.emit(ctx, events.TypeRolloverAlert, events.OutcomeOK, symbol, map[string]any{
		"new_symbol": newSymbol,
		"contracts":  contracts,
		"exit":       oldFill.Price.String(),
		"entry":      newFill.Price.String(),
		"stop":       entryStop.String(),
	})
	return nil
}
