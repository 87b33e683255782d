package signal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// TradeHistory supplies the most recent closed trade for a symbol and
// system, or nil when none exists.
type TradeHistory interface {
	LastClosedTrade(ctx context.Context, symbol string, system types.System) (*types.Trade, error)
}

// Verdict is the outcome of the last-winner filter.
type Verdict struct {
	Take   bool
	Reason string
}

// S1Filter implements the classic last-winner rule: an S1 breakout is
// skipped when the previous S1 trade in the same market was a winner.
// S2 signals always pass; S2 is the failsafe that keeps the system in
// big trends the filter would otherwise miss.
type S1Filter struct {
	logger  *zap.Logger
	history TradeHistory
}

func NewS1Filter(logger *zap.Logger, history TradeHistory) *S1Filter {
	return &S1Filter{logger: logger, history: history}
}

// Check decides whether a signal survives the filter. A missing trade
// history (first ever signal in the market) always passes.
func (f *S1Filter) Check(ctx context.Context, sig types.Signal) (Verdict, error) {
	if sig.System == types.SystemTwo {
		return Verdict{Take: true, Reason: "s2 signals are never filtered"}, nil
	}

	last, err := f.history.LastClosedTrade(ctx, sig.Symbol, types.SystemOne)
	if err != nil {
		return Verdict{}, fmt.Errorf("fetching last s1 trade for %s: %w", sig.Symbol, err)
	}
	if last == nil {
		return Verdict{Take: true, Reason: "no prior s1 trade"}, nil
	}

	if last.WasWinner() {
		f.logger.Info("s1 signal skipped by last-winner filter",
			zap.String("symbol", sig.Symbol),
			zap.String("last_trade", last.ID),
			zap.String("net_pnl", last.NetPnL.String()),
		)
		return Verdict{Take: false, Reason: fmt.Sprintf("last s1 trade %s was a winner", last.ID)}, nil
	}

	return Verdict{Take: true, Reason: "last s1 trade was not a winner"}, nil
}
