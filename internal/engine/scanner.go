package engine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/broker"
	"github.com/donchian-labs/turtle-engine/internal/events"
	"github.com/donchian-labs/turtle-engine/internal/limits"
	"github.com/donchian-labs/turtle-engine/internal/position"
	"github.com/donchian-labs/turtle-engine/internal/signal"
	"github.com/donchian-labs/turtle-engine/internal/sizing"
	"github.com/donchian-labs/turtle-engine/internal/workers"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// ScanReport summarizes one daily scan.
type ScanReport struct {
	Scanned  int
	Signaled int
	Filtered int
	Entered  int
	Skipped  int
	Errors   int
}

// Scan runs the daily pipeline over the universe: indicators, signals,
// filter, ranking, sizing, limits, entries. Symbol failures are
// isolated; the scan always completes and reports counts.
func (e *Engine) Scan(ctx context.Context, universe []types.MarketSpec, asOf time.Time) (ScanReport, error) {
	started := time.Now()
	var report ScanReport

	e.emit(ctx, events.TypeScanStarted, events.OutcomeOK, "", map[string]any{
		"universe": len(universe),
		"as_of":    asOf.Format("2006-01-02"),
	})

	snap, err := e.refreshEquity(ctx)
	if err != nil {
		return report, err
	}

	active := make([]types.MarketSpec, 0, len(universe))
	for _, spec := range universe {
		if spec.Active {
			active = append(active, spec)
		}
	}

	// Bar fetching and indicator math run in parallel; every decision
	// below folds back into one ordered sequence.
	specBySymbol := make(map[string]types.MarketSpec, len(active))
	symbols := make([]string, len(active))
	for i, spec := range active {
		specBySymbol[spec.Symbol] = spec
		symbols[i] = spec.Symbol
	}
	built := workers.ForEachSymbol(ctx, e.pool, symbols, func(ctx context.Context, sym string) (types.MarketData, error) {
		return e.builder.Build(ctx, specBySymbol[sym], asOf)
	})

	var candidates []signal.Candidate
	for _, r := range built {
		report.Scanned++
		if e.metrics != nil {
			e.metrics.SymbolsScanned.Inc()
		}
		if r.Err != nil {
			report.Errors++
			if e.metrics != nil {
				e.metrics.SymbolErrors.Inc()
			}
			e.logger.Warn("symbol skipped",
				zap.String("symbol", r.Symbol),
				zap.Error(r.Err),
			)
			e.emit(ctx, events.TypeSymbolError, events.OutcomeFailed, r.Symbol, map[string]any{
				"error": r.Err.Error(),
			})
			continue
		}

		md := r.Value
		for _, sig := range e.detector.Detect(md, asOf) {
			report.Signaled++
			if e.metrics != nil {
				e.metrics.SignalsDetected.WithLabelValues(string(sig.System), string(sig.Direction)).Inc()
			}
			e.emit(ctx, events.TypeSignalDetected, events.OutcomeOK, sig.Symbol, map[string]any{
				"system":    string(sig.System),
				"direction": string(sig.Direction),
				"breakout":  sig.BreakoutPrice.String(),
				"price":     md.CurrentPrice.String(),
			})
			price := md.CurrentPrice
			e.alert(ctx, types.Alert{
				Symbol:    sig.Symbol,
				AlertType: types.AlertEntrySignal,
				Direction: sig.Direction,
				System:    sig.System,
				Price:     &price,
				Details:   "breakout of " + sig.BreakoutPrice.String(),
			})

			if e.book.Get(sig.Symbol) != nil {
				report.Skipped++
				e.emit(ctx, events.TypeEntrySkipped, events.OutcomeSkipped, sig.Symbol, map[string]any{
					"reason": "position already open",
				})
				continue
			}

			verdict, err := e.filter.Check(ctx, sig)
			if err != nil {
				report.Errors++
				e.emit(ctx, events.TypeSymbolError, events.OutcomeFailed, sig.Symbol, map[string]any{
					"error": err.Error(),
				})
				continue
			}
			e.emit(ctx, events.TypeSignalFiltered, filterOutcome(verdict), sig.Symbol, map[string]any{
				"take":   verdict.Take,
				"reason": verdict.Reason,
			})
			if !verdict.Take {
				report.Filtered++
				if e.metrics != nil {
					e.metrics.SignalsFiltered.Inc()
				}
				continue
			}

			candidates = append(candidates, signal.Candidate{Signal: sig, Market: md})
		}
	}

	ranked := signal.RankCandidates(candidates)
	entered := make(map[string]bool)
	for _, cand := range ranked {
		// One unit per symbol per scan; a symbol that fired both
		// systems enters on the stronger signal only.
		if entered[cand.Signal.Symbol] {
			continue
		}
		e.emit(ctx, events.TypeSignalRanked, events.OutcomeOK, cand.Signal.Symbol, map[string]any{
			"strength": signal.Strength(cand).String(),
			"system":   string(cand.Signal.System),
		})
		ok := e.tryEnter(ctx, cand, snap.NotionalEquity, &report)
		if ok {
			entered[cand.Signal.Symbol] = true
			// Re-snapshot equity-dependent state is unnecessary: risk
			// accounting uses the book, which the entry just updated.
		}
	}

	e.updateBookGauges()
	if e.metrics != nil {
		e.metrics.ScansTotal.Inc()
		e.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	}
	e.emit(ctx, events.TypeScanFinished, events.OutcomeOK, "", map[string]any{
		"scanned":  report.Scanned,
		"signaled": report.Signaled,
		"filtered": report.Filtered,
		"entered":  report.Entered,
		"skipped":  report.Skipped,
		"errors":   report.Errors,
	})
	e.logger.Info("scan finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("signaled", report.Signaled),
		zap.Int("filtered", report.Filtered),
		zap.Int("entered", report.Entered),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors),
		zap.Duration("took", time.Since(started)),
	)
	return report, nil
}

func filterOutcome(v signal.Verdict) events.Outcome {
	if v.Take {
		return events.OutcomeOK
	}
	return events.OutcomeSkipped
}

// tryEnter sizes, limit-checks and places one entry. Returns true only
// when a position was opened.
func (e *Engine) tryEnter(ctx context.Context, cand signal.Candidate, notional decimal.Decimal, report *ScanReport) bool {
	sig, md := cand.Signal, cand.Market

	if e.reconcileNeeded(sig.Symbol) {
		report.Skipped++
		e.emit(ctx, events.TypeEntrySkipped, events.OutcomeBlocked, sig.Symbol, map[string]any{
			"reason": "symbol awaiting reconciliation",
		})
		return false
	}

	size := e.sizer.Size(notional, md.N.Value, md.Spec)
	if !size.Tradeable {
		report.Skipped++
		if e.metrics != nil {
			e.metrics.EntriesBlocked.WithLabelValues("zero_size").Inc()
		}
		e.emit(ctx, events.TypeEntrySkipped, events.OutcomeSkipped, sig.Symbol, map[string]any{
			"reason":            "zero size",
			"risk_amount":       size.RiskAmount.String(),
			"dollar_volatility": size.DollarVolatility.String(),
		})
		return false
	}

	verdict := e.checker.Check(e.book.Exposure(e.rules), limits.Candidate{
		Symbol:           sig.Symbol,
		CorrelationGroup: md.Spec.CorrelationGroup,
		UnitRisk:         size.StopRisk.Mul(decimal.NewFromInt(size.Contracts)),
	}, notional)
	if !verdict.Allowed {
		report.Skipped++
		if e.metrics != nil {
			e.metrics.EntriesBlocked.WithLabelValues("limit").Inc()
		}
		e.emit(ctx, events.TypeEntrySkipped, events.OutcomeBlocked, sig.Symbol, map[string]any{
			"reason": verdict.Reason,
		})
		return false
	}

	stop := sizing.StopPrice(md.CurrentPrice, md.N.Value, sig.Direction, e.rules.StopMultiplier)
	if e.dryRun {
		report.Skipped++
		e.emit(ctx, events.TypeOrderPlaced, events.OutcomeSkipped, sig.Symbol, map[string]any{
			"dry_run":   true,
			"contracts": size.Contracts,
			"stop":      stop.String(),
		})
		return false
	}

	fill, err := e.broker.PlaceBracketOrder(ctx, broker.BracketOrder{
		Symbol:    sig.Symbol,
		Direction: sig.Direction,
		Contracts: size.Contracts,
		StopPrice: stop,
	})
	if err != nil {
		report.Errors++
		if e.metrics != nil {
			e.metrics.BrokerErrors.WithLabelValues(brokerErrorClass(err)).Inc()
		}
		e.logger.Error("entry order failed",
			zap.String("symbol", sig.Symbol),
			zap.Error(err),
		)
		e.emit(ctx, events.TypeOrderRejected, events.OutcomeFailed, sig.Symbol, map[string]any{
			"error": err.Error(),
		})
		if errors.Is(err, types.ErrReconciliationRequired) {
			e.markReconcileNeeded(ctx, sig.Symbol, err)
		}
		return false
	}

	// The fill price, not the breakout price, anchors the stop.
	entryStop := sizing.StopPrice(fill.Price, md.N.Value, sig.Direction, e.rules.StopMultiplier)
	level := types.PyramidLevel{
		UnitNumber:   1,
		EntryPrice:   fill.Price,
		EntryTime:    fill.FilledAt,
		NAtEntry:     md.N.Value,
		Contracts:    fill.Contracts,
		OriginalStop: entryStop,
	}
	pos, err := position.Open(md.Spec, sig.System, sig.Direction, level, entryStop)
	if err != nil {
		report.Errors++
		e.logger.Error("opening position aggregate failed",
			zap.String("symbol", sig.Symbol),
			zap.Error(err),
		)
		return false
	}
	if err := e.book.Add(pos); err != nil {
		report.Errors++
		e.logger.Error("book insert failed", zap.String("symbol", sig.Symbol), zap.Error(err))
		return false
	}
	if !entryStop.Equal(stop) {
		if err := e.broker.ModifyStop(ctx, sig.Symbol, entryStop); err != nil {
			e.logger.Warn("stop adjustment after fill failed",
				zap.String("symbol", sig.Symbol),
				zap.Error(err),
			)
		}
	}

	trade := &types.Trade{
		ID:              pos.ID,
		Symbol:          sig.Symbol,
		System:          sig.System,
		Direction:       sig.Direction,
		EntryDate:       fill.FilledAt,
		EntryPrice:      fill.Price,
		NAtEntry:        md.N.Value,
		InitialStop:     entryStop,
		PyramidLevels:   pos.Levels,
		MaxUnits:        e.rules.MaxUnitsPerMarket,
		CommissionTotal: e.commissionFor(fill.Contracts),
	}
	if err := e.repo.InsertTrade(ctx, *trade); err != nil {
		e.logger.Error("trade insert failed", zap.String("symbol", sig.Symbol), zap.Error(err))
	}
	e.setTrade(sig.Symbol, trade)
	e.persistPositionSnapshot(ctx, pos, md)

	price := fill.Price
	e.alert(ctx, types.Alert{
		Symbol:    sig.Symbol,
		AlertType: types.AlertPositionOpened,
		Direction: sig.Direction,
		System:    sig.System,
		Price:     &price,
		Details:   "opened unit 1",
	})
	e.emit(ctx, events.TypePositionOpened, events.OutcomeOK, sig.Symbol, map[string]any{
		"contracts": fill.Contracts,
		"entry":     fill.Price.String(),
		"stop":      entryStop.String(),
		"system":    string(sig.System),
		"direction": string(sig.Direction),
	})
	if e.metrics != nil {
		e.metrics.EntriesPlaced.Inc()
	}
	report.Entered++
	return true
}
