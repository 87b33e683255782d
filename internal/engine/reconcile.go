package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/events"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Reconcile compares the in-memory book against the broker's position
// set. Mismatches are flagged, never silently corrected; the broker is
// authoritative for executions but the book carries intent the broker
// cannot reconstruct.
func (e *Engine) Reconcile(ctx context.Context) error {
	brokerPositions, err := e.broker.Positions(ctx)
	if err != nil {
		return fmt.Errorf("fetching broker positions: %w", err)
	}

	atBroker := make(map[string]int64, len(brokerPositions))
	for _, bp := range brokerPositions {
		atBroker[bp.Symbol] = bp.Contracts
	}

	var drift []string
	var driftSymbols []string
	for _, pos := range e.book.All() {
		held, ok := atBroker[pos.Symbol]
		if !ok {
			drift = append(drift, fmt.Sprintf("%s: book holds %d contracts, broker is flat",
				pos.Symbol, pos.TotalContracts()))
			driftSymbols = append(driftSymbols, pos.Symbol)
			continue
		}
		if held != pos.TotalContracts() {
			drift = append(drift, fmt.Sprintf("%s: book holds %d contracts, broker holds %d",
				pos.Symbol, pos.TotalContracts(), held))
			driftSymbols = append(driftSymbols, pos.Symbol)
		}
		delete(atBroker, pos.Symbol)
	}
	for sym, held := range atBroker {
		drift = append(drift, fmt.Sprintf("%s: broker holds %d contracts, book is flat", sym, held))
		driftSymbols = append(driftSymbols, sym)
	}

	if len(drift) == 0 {
		e.clearReconcileFlags()
		e.logger.Info("reconciliation clean",
			zap.Int("positions", e.book.Len()),
		)
		return nil
	}

	e.mu.Lock()
	for _, sym := range driftSymbols {
		e.needsRecon[sym] = true
	}
	e.mu.Unlock()
	for _, d := range drift {
		e.logger.Error("position drift detected", zap.String("drift", d))
	}
	e.emit(ctx, events.TypeReconcileDrift, events.OutcomeFailed, "", map[string]any{
		"drift": drift,
	})
	return fmt.Errorf("%w: %d position(s) drifted", types.ErrReconciliationRequired, len(drift))
}
