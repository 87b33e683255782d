package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/datafeed"
	"github.com/donchian-labs/turtle-engine/internal/indicator"
	"github.com/donchian-labs/turtle-engine/internal/storage"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// minScanBars is the floor on the history request; the 55-day channel
// plus ATR seeding fits comfortably inside it.
const minScanBars = 70

// MarketDataBuilder assembles the per-symbol snapshot: bars in,
// validated, indicators out, persisted. The stateful N recurrence is
// used whenever a persisted N exists for the symbol; the from-scratch
// calculation only seeds new symbols.
type MarketDataBuilder struct {
	logger    *zap.Logger
	rules     types.Rules
	feed      datafeed.Feed
	repo      Repository
	validator *indicator.BarValidator
	atr       *indicator.ATRCalculator
}

func NewMarketDataBuilder(logger *zap.Logger, rules types.Rules, feed datafeed.Feed, repo Repository, validator *indicator.BarValidator) *MarketDataBuilder {
	return &MarketDataBuilder{
		logger:    logger,
		rules:     rules,
		feed:      feed,
		repo:      repo,
		validator: validator,
		atr:       indicator.NewATRCalculator(rules.ATRPeriod, rules.ATRMethod),
	}
}

func (b *MarketDataBuilder) barCount() int {
	if n := b.rules.MinHistoryBars(); n > minScanBars {
		return n
	}
	return minScanBars
}

// Build fetches history, validates it, computes indicators, persists
// the day's row and returns the snapshot.
func (b *MarketDataBuilder) Build(ctx context.Context, spec types.MarketSpec, asOf time.Time) (types.MarketData, error) {
	bars, err := b.feed.Bars(ctx, spec.Symbol, asOf, b.barCount())
	if err != nil {
		return types.MarketData{}, fmt.Errorf("fetching bars for %s: %w", spec.Symbol, err)
	}
	if err := b.validator.ValidateSeries(bars); err != nil {
		return types.MarketData{}, err
	}

	n, err := b.computeN(ctx, spec.Symbol, bars)
	if err != nil {
		return types.MarketData{}, err
	}

	// Channels cover the completed days before the latest bar; the
	// latest bar is the session the current price belongs to. A close
	// can then genuinely cross its channel.
	prior := bars
	if len(prior) > 1 {
		prior = bars[:len(bars)-1]
	}
	dc10, err := indicator.Donchian(prior, b.rules.S1ExitPeriod)
	if err != nil {
		return types.MarketData{}, err
	}
	dc20, err := indicator.Donchian(prior, b.rules.S1EntryPeriod)
	if err != nil {
		return types.MarketData{}, err
	}
	dc55, err := indicator.Donchian(prior, b.rules.S2EntryPeriod)
	if err != nil {
		return types.MarketData{}, err
	}

	price, err := b.feed.CurrentPrice(ctx, spec.Symbol)
	if err != nil {
		return types.MarketData{}, fmt.Errorf("fetching price for %s: %w", spec.Symbol, err)
	}

	latest := bars[len(bars)-1]
	row := storage.IndicatorRow{
		Symbol:   spec.Symbol,
		CalcDate: latest.Date,
		N:        n.Value,
		DC10:     dc10,
		DC20:     dc20,
		DC55:     dc55,
	}
	if err := b.repo.SaveIndicators(ctx, row); err != nil {
		return types.MarketData{}, fmt.Errorf("persisting indicators for %s: %w", spec.Symbol, err)
	}

	return types.MarketData{
		Spec:         spec,
		CurrentPrice: price,
		N:            n,
		Donchian10:   dc10,
		Donchian20:   dc20,
		Donchian55:   dc55,
		LatestBar:    &latest,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

// computeN prefers the stateful recurrence over a previously persisted
// N; the persisted series stays authoritative once seeded. When the
// persisted value lags the latest bar by more than one day (missed
// scans, a halted symbol), every intervening bar's true range is
// folded in; skipping them would distort the smoothing.
func (b *MarketDataBuilder) computeN(ctx context.Context, symbol string, bars []types.Bar) (types.NValue, error) {
	if len(bars) >= 2 {
		prev, err := b.repo.LatestN(ctx, symbol)
		if err != nil {
			return types.NValue{}, fmt.Errorf("loading persisted n for %s: %w", symbol, err)
		}
		latest := bars[len(bars)-1]
		if prev != nil && prev.Value.IsPositive() {
			prev.Period = b.rules.ATRPeriod
			prev.Method = b.rules.ATRMethod
			if prev.CalculatedAt.Equal(latest.Date) {
				return *prev, nil
			}
			// The walk needs the bar preceding the first new one for
			// its true range; if the persisted date fell out of the
			// fetched window, reseed from scratch instead.
			if prev.CalculatedAt.Before(latest.Date) && !bars[0].Date.After(prev.CalculatedAt) {
				n := *prev
				for i := 1; i < len(bars); i++ {
					if !bars[i].Date.After(prev.CalculatedAt) {
						continue
					}
					tr := indicator.TrueRange(bars[i], bars[i-1].Close)
					n = b.atr.Update(n, tr, bars[i].Date)
				}
				return n, nil
			}
		}
	}
	return b.atr.Calculate(bars)
}
