package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/broker"
	"github.com/donchian-labs/turtle-engine/internal/datafeed"
	"github.com/donchian-labs/turtle-engine/internal/equity"
	"github.com/donchian-labs/turtle-engine/internal/events"
	"github.com/donchian-labs/turtle-engine/internal/limits"
	"github.com/donchian-labs/turtle-engine/internal/metrics"
	"github.com/donchian-labs/turtle-engine/internal/position"
	"github.com/donchian-labs/turtle-engine/internal/signal"
	"github.com/donchian-labs/turtle-engine/internal/sizing"
	"github.com/donchian-labs/turtle-engine/internal/workers"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Engine owns the trading state and the two loops that drive it.
type Engine struct {
	logger     *zap.Logger
	rules      types.Rules
	feed       datafeed.Feed
	broker     broker.Broker
	repo       Repository
	book       *position.Book
	tracker    *equity.DrawdownTracker
	sizer      *sizing.UnitSizer
	checker    *limits.Checker
	detector   *signal.Detector
	filter     *signal.S1Filter
	builder    *MarketDataBuilder
	emitter    *events.Emitter
	metrics    *metrics.Metrics
	pool       *workers.Pool
	commission decimal.Decimal
	dryRun     bool

	mu            sync.Mutex
	trades        map[string]*types.Trade // open trade audit record per symbol
	lastSnapshots map[string]snapshotState
	needsRecon    map[string]bool // symbols with ambiguous broker state
}

// Options collects the engine's collaborators.
type Options struct {
	Logger     *zap.Logger
	Rules      types.Rules
	Feed       datafeed.Feed
	Broker     broker.Broker
	Repo       Repository
	Tracker    *equity.DrawdownTracker
	Emitter    *events.Emitter
	Metrics    *metrics.Metrics
	Builder    *MarketDataBuilder
	Pool       *workers.Pool
	Commission decimal.Decimal
	DryRun     bool
}

func New(opts Options) *Engine {
	return &Engine{
		logger:        opts.Logger,
		rules:         opts.Rules,
		feed:          opts.Feed,
		broker:        opts.Broker,
		repo:          opts.Repo,
		book:          position.NewBook(),
		tracker:       opts.Tracker,
		sizer:         sizing.NewUnitSizer(opts.Logger, opts.Rules),
		checker:       limits.NewChecker(opts.Logger, opts.Rules),
		detector:      signal.NewDetector(opts.Logger, opts.Rules),
		filter:        signal.NewS1Filter(opts.Logger, opts.Repo),
		builder:       opts.Builder,
		emitter:       opts.Emitter,
		metrics:       opts.Metrics,
		pool:          opts.Pool,
		commission:    opts.Commission,
		dryRun:        opts.DryRun,
		trades:        make(map[string]*types.Trade),
		lastSnapshots: make(map[string]snapshotState),
		needsRecon:    make(map[string]bool),
	}
}

// Book exposes the open-position book for the API layer.
func (e *Engine) Book() *position.Book { return e.book }

// Equity exposes the drawdown tracker snapshot for the API layer.
func (e *Engine) Equity() equity.Snapshot { return e.tracker.Snapshot() }

// refreshEquity pulls account state, feeds the drawdown tracker and
// updates the gauges.
func (e *Engine) refreshEquity(ctx context.Context) (equity.Snapshot, error) {
	summary, err := e.feed.AccountSummary(ctx)
	if err != nil {
		return equity.Snapshot{}, fmt.Errorf("fetching account summary: %w", err)
	}
	snap := e.tracker.Update(summary.NetLiquidation, time.Now().UTC())

	if e.metrics != nil {
		actual, _ := snap.ActualEquity.Float64()
		notional, _ := snap.NotionalEquity.Float64()
		e.metrics.ActualEquity.Set(actual)
		e.metrics.NotionalEquity.Set(notional)
	}
	e.emit(ctx, events.TypeEquityUpdated, events.OutcomeOK, "", map[string]any{
		"actual":   snap.ActualEquity.String(),
		"peak":     snap.PeakEquity.String(),
		"notional": snap.NotionalEquity.String(),
		"steps":    snap.ReductionSteps,
	})
	return snap, nil
}

func (e *Engine) emit(ctx context.Context, t events.Type, outcome events.Outcome, symbol string, fields map[string]any) {
	if e.emitter != nil {
		e.emitter.Emit(ctx, t, outcome, symbol, fields)
		if e.metrics != nil {
			e.metrics.EventsEmitted.Inc()
		}
	}
}

func (e *Engine) alert(ctx context.Context, a types.Alert) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	if err := e.repo.InsertAlert(ctx, a); err != nil {
		e.logger.Error("alert write failed",
			zap.String("symbol", a.Symbol),
			zap.String("type", string(a.AlertType)),
			zap.Error(err),
		)
	}
}

func (e *Engine) updateBookGauges() {
	if e.metrics == nil {
		return
	}
	exp := e.book.Exposure(e.rules)
	e.metrics.OpenPositions.Set(float64(e.book.Len()))
	e.metrics.OpenUnits.Set(float64(exp.TotalUnits))
}

// openTrade returns the audit record tracking a position.
func (e *Engine) openTrade(symbol string) *types.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trades[symbol]
}

func (e *Engine) setTrade(symbol string, t *types.Trade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t == nil {
		delete(e.trades, symbol)
	} else {
		e.trades[symbol] = t
	}
}

// markReconcileNeeded blocks new orders on a symbol whose true broker
// state is unknown. Only a clean Reconcile pass lifts the block.
func (e *Engine) markReconcileNeeded(ctx context.Context, symbol string, cause error) {
	e.mu.Lock()
	e.needsRecon[symbol] = true
	e.mu.Unlock()
	e.logger.Error("symbol blocked pending reconciliation",
		zap.String("symbol", symbol),
		zap.Error(cause),
	)
	e.emit(ctx, events.TypeReconcileDrift, events.OutcomeFailed, symbol, map[string]any{
		"error": cause.Error(),
	})
}

func (e *Engine) reconcileNeeded(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.needsRecon[symbol]
}

func (e *Engine) clearReconcileFlags() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.needsRecon = make(map[string]bool)
}

// commissionFor is the one-side commission for a number of contracts.
func (e *Engine) commissionFor(contracts int64) decimal.Decimal {
	return e.commission.Mul(decimal.NewFromInt(contracts))
}
