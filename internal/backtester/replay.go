package backtester

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/internal/datafeed"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// replayFeed wraps a historical feed behind a movable clock. The
// wrapped feed never leaks bars past the simulated date, whatever asOf
// the caller passes; the engine uses wall time internally and must not
// see the future.
type replayFeed struct {
	mu     sync.RWMutex
	source datafeed.Feed
	clock  time.Time
	equity decimal.Decimal
}

func newReplayFeed(source datafeed.Feed, initialEquity decimal.Decimal) *replayFeed {
	return &replayFeed{
		source: source,
		equity: initialEquity,
	}
}

// advance moves the clock to a new simulated date.
func (r *replayFeed) advance(day time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = day
}

// setEquity updates the simulated account value.
func (r *replayFeed) setEquity(v decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.equity = v
}

func (r *replayFeed) now() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clock
}

func (r *replayFeed) Bars(ctx context.Context, symbol string, asOf time.Time, limit int) ([]types.Bar, error) {
	clock := r.now()
	if asOf.After(clock) {
		asOf = clock
	}
	return r.source.Bars(ctx, symbol, asOf, limit)
}

// CurrentPrice is the close of the latest bar at or before the clock.
func (r *replayFeed) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	bars, err := r.source.Bars(ctx, symbol, r.now(), 1)
	if err != nil {
		return decimal.Zero, err
	}
	if len(bars) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no bars for %s at %s",
			types.ErrDataSourceUnavailable, symbol, r.now().Format("2006-01-02"))
	}
	return bars[0].Close, nil
}

func (r *replayFeed) AccountSummary(ctx context.Context) (types.AccountSummary, error) {
	if err := ctx.Err(); err != nil {
		return types.AccountSummary{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return types.AccountSummary{
		NetLiquidation: r.equity,
		Cash:           r.equity,
		Currency:       "USD",
		ReportedAt:     r.clock,
	}, nil
}
