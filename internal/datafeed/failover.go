package datafeed

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// FailoverFeed tries a primary feed and falls back to a secondary when
// the primary reports a source outage. Other errors (bad symbol,
// cancelled context) propagate without failover.
type FailoverFeed struct {
	logger    *zap.Logger
	primary   Feed
	secondary Feed
}

func NewFailoverFeed(logger *zap.Logger, primary, secondary Feed) *FailoverFeed {
	return &FailoverFeed{logger: logger, primary: primary, secondary: secondary}
}

func (f *FailoverFeed) shouldFailover(err error) bool {
	return f.secondary != nil && errors.Is(err, types.ErrDataSourceUnavailable)
}

func (f *FailoverFeed) Bars(ctx context.Context, symbol string, asOf time.Time, limit int) ([]types.Bar, error) {
	bars, err := f.primary.Bars(ctx, symbol, asOf, limit)
	if err != nil && f.shouldFailover(err) {
		f.logger.Warn("primary feed unavailable, using secondary",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return f.secondary.Bars(ctx, symbol, asOf, limit)
	}
	return bars, err
}

func (f *FailoverFeed) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, err := f.primary.CurrentPrice(ctx, symbol)
	if err != nil && f.shouldFailover(err) {
		f.logger.Warn("primary feed unavailable, using secondary",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return f.secondary.CurrentPrice(ctx, symbol)
	}
	return price, err
}

func (f *FailoverFeed) AccountSummary(ctx context.Context) (types.AccountSummary, error) {
	summary, err := f.primary.AccountSummary(ctx)
	if err != nil && f.shouldFailover(err) {
		return f.secondary.AccountSummary(ctx)
	}
	return summary, err
}
