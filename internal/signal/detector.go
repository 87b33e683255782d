package signal

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Detector finds Donchian channel breakouts on a market snapshot. A
// breakout requires a strict cross: price above the upper channel or
// below the lower channel, never equal to it.
type Detector struct {
	logger *zap.Logger
	rules  types.Rules
}

func NewDetector(logger *zap.Logger, rules types.Rules) *Detector {
	return &Detector{logger: logger, rules: rules}
}

// Detect evaluates both systems against the current price and returns
// every breakout found, at most one per system. A price that clears
// both the 20-day and 55-day channels yields two signals; the caller
// decides which to act on.
func (d *Detector) Detect(md types.MarketData, asOf time.Time) []types.Signal {
	var signals []types.Signal
	for _, sys := range []types.System{types.SystemOne, types.SystemTwo} {
		period := d.rules.EntryPeriod(sys)
		if sig, ok := d.detectSystem(md, sys, period, asOf); ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

func (d *Detector) detectSystem(md types.MarketData, sys types.System, period int, asOf time.Time) (types.Signal, bool) {
	ch := md.Channel(period)
	price := md.CurrentPrice

	var dir types.Direction
	var breakout decimal.Decimal
	switch {
	case price.GreaterThan(ch.Upper):
		dir = types.DirectionLong
		breakout = ch.Upper
	case price.LessThan(ch.Lower):
		dir = types.DirectionShort
		breakout = ch.Lower
	default:
		return types.Signal{}, false
	}

	d.logger.Debug("breakout detected",
		zap.String("symbol", md.Spec.Symbol),
		zap.String("system", string(sys)),
		zap.String("direction", string(dir)),
		zap.String("price", price.String()),
		zap.String("channel", breakout.String()),
	)

	return types.Signal{
		Symbol:         md.Spec.Symbol,
		System:         sys,
		Direction:      dir,
		BreakoutPrice:  breakout,
		TriggeredAt:    asOf,
		DonchianPeriod: period,
	}, true
}
