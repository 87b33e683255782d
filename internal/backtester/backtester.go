// Package backtester replays historical daily bars through the live
// trading engine. The same scanner, monitor, sizing and limit code
// paths run against a simulated clock, a paper broker and an in-memory
// repository; only the feed and the calendar differ from production.
package backtester

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/broker"
	"github.com/donchian-labs/turtle-engine/internal/datafeed"
	"github.com/donchian-labs/turtle-engine/internal/engine"
	"github.com/donchian-labs/turtle-engine/internal/equity"
	"github.com/donchian-labs/turtle-engine/internal/events"
	"github.com/donchian-labs/turtle-engine/internal/indicator"
	"github.com/donchian-labs/turtle-engine/internal/workers"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Config describes one simulation run.
type Config struct {
	Start         time.Time
	End           time.Time
	InitialEquity decimal.Decimal
	Commission    decimal.Decimal
	Rules         types.Rules
	Universe      []types.MarketSpec
}

// EquityPoint is one day on the simulated equity curve.
type EquityPoint struct {
	Date   time.Time       `json:"date"`
	Equity decimal.Decimal `json:"equity"`
}

// Result is the outcome of a simulation.
type Result struct {
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Days          int             `json:"days"`
	InitialEquity decimal.Decimal `json:"initialEquity"`
	FinalEquity   decimal.Decimal `json:"finalEquity"`
	Stats         Stats           `json:"stats"`
	Trades        []types.Trade   `json:"trades"`
	OpenPositions int             `json:"openPositions"`
	EquityCurve   []EquityPoint   `json:"equityCurve"`
	Duration      time.Duration   `json:"duration"`
}

// Backtester drives the engine across a historical date range.
type Backtester struct {
	logger *zap.Logger
	feed   datafeed.Feed
}

func New(logger *zap.Logger, feed datafeed.Feed) *Backtester {
	return &Backtester{logger: logger, feed: feed}
}

// Run replays every trading day in the range. For each day the monitor
// cycle runs first, so stops and exits settle on the new bar before
// the scanner hunts for fresh breakouts.
func (b *Backtester) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Universe) == 0 {
		return nil, fmt.Errorf("backtest universe is empty")
	}
	if !cfg.End.After(cfg.Start) {
		return nil, fmt.Errorf("backtest range %s..%s is empty",
			cfg.Start.Format("2006-01-02"), cfg.End.Format("2006-01-02"))
	}

	started := time.Now()
	replay := newReplayFeed(b.feed, cfg.InitialEquity)
	repo := newMemRepo()
	paper := broker.NewPaper(b.logger, replay)
	validator := indicator.NewBarValidator(b.logger, decimal.NewFromFloat(0.25))

	eng := engine.New(engine.Options{
		Logger:     b.logger,
		Rules:      cfg.Rules,
		Feed:       replay,
		Broker:     paper,
		Repo:       repo,
		Tracker:    equity.NewDrawdownTracker(b.logger, cfg.Rules, cfg.InitialEquity),
		Emitter:    events.NewEmitter(b.logger, nil, nil, events.SourceBacktest, false),
		Builder:    engine.NewMarketDataBuilder(b.logger, cfg.Rules, replay, repo, validator),
		Pool:       workers.NewPool(b.logger, 4),
		Commission: cfg.Commission,
	})

	days, err := b.tradingDays(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: no bars in backtest range", types.ErrDataSourceUnavailable)
	}

	b.logger.Info("backtest starting",
		zap.Time("start", cfg.Start),
		zap.Time("end", cfg.End),
		zap.Int("days", len(days)),
		zap.Int("symbols", len(cfg.Universe)),
	)

	curve := make([]EquityPoint, 0, len(days))
	simEquity := cfg.InitialEquity
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		replay.advance(day)
		replay.setEquity(simEquity)

		if eng.Book().Len() > 0 {
			if _, err := eng.MonitorCycle(ctx); err != nil {
				b.logger.Warn("simulated monitor cycle failed",
					zap.Time("day", day),
					zap.Error(err),
				)
			}
		}
		if _, err := eng.Scan(ctx, cfg.Universe, day); err != nil {
			b.logger.Warn("simulated scan failed",
				zap.Time("day", day),
				zap.Error(err),
			)
		}

		simEquity = b.markToMarket(ctx, eng, repo, replay, cfg.InitialEquity)
		curve = append(curve, EquityPoint{Date: day, Equity: simEquity})
	}

	trades := repo.closedTrades()
	result := &Result{
		Start:         cfg.Start,
		End:           cfg.End,
		Days:          len(days),
		InitialEquity: cfg.InitialEquity,
		FinalEquity:   simEquity,
		Stats:         computeStats(trades, curve, cfg.InitialEquity),
		Trades:        trades,
		OpenPositions: eng.Book().Len(),
		EquityCurve:   curve,
		Duration:      time.Since(started),
	}

	b.logger.Info("backtest finished",
		zap.Int("trades", len(result.Trades)),
		zap.Int("open_positions", result.OpenPositions),
		zap.String("final_equity", result.FinalEquity.String()),
		zap.Duration("took", result.Duration),
	)
	return result, nil
}

// tradingDays is the union of bar dates across the universe, clipped
// to the configured range.
func (b *Backtester) tradingDays(ctx context.Context, cfg Config) ([]time.Time, error) {
	seen := make(map[time.Time]bool)
	for _, spec := range cfg.Universe {
		bars, err := b.feed.Bars(ctx, spec.Symbol, cfg.End, 1<<20)
		if err != nil {
			return nil, fmt.Errorf("loading history for %s: %w", spec.Symbol, err)
		}
		for _, bar := range bars {
			if bar.Date.Before(cfg.Start) || bar.Date.After(cfg.End) {
				continue
			}
			seen[bar.Date] = true
		}
	}
	days := make([]time.Time, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

// markToMarket values the account: starting equity, plus settled net
// P&L, plus unrealized P&L on whatever is still open at today's close.
func (b *Backtester) markToMarket(ctx context.Context, eng *engine.Engine, repo *memRepo, replay *replayFeed, initial decimal.Decimal) decimal.Decimal {
	total := initial
	for _, t := range repo.closedTrades() {
		if t.NetPnL != nil {
			total = total.Add(*t.NetPnL)
		}
	}
	for _, pos := range eng.Book().All() {
		price, err := replay.CurrentPrice(ctx, pos.Symbol)
		if err != nil {
			continue
		}
		total = total.Add(pos.UnrealizedPnL(price))
	}
	return total
}
