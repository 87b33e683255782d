// Package datafeed abstracts where bars and account state come from.
// The engine only ever sees the Feed interface; files, brokers and
// backtest fixtures all sit behind it.
package datafeed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Feed supplies market and account data. Implementations must be safe
// for concurrent use; the monitor polls several symbols at once.
type Feed interface {
	// Bars returns up to limit daily bars for the symbol ending at or
	// before asOf, oldest first.
	Bars(ctx context.Context, symbol string, asOf time.Time, limit int) ([]types.Bar, error)

	// CurrentPrice returns the latest traded price.
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// AccountSummary returns current account equity and margin state.
	AccountSummary(ctx context.Context) (types.AccountSummary, error)
}
