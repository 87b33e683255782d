// Package indicator provides the volatility and channel calculations the
// decision engine runs on: Wilder-smoothed ATR (the turtle "N") and
// Donchian channels, plus bar-level sanity validation.
package indicator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// ATRCalculator computes N, the smoothed average true range.
type ATRCalculator struct {
	period int
	method types.ATRMethod
}

// NewATRCalculator creates a calculator for the given period and method.
func NewATRCalculator(period int, method types.ATRMethod) *ATRCalculator {
	return &ATRCalculator{period: period, method: method}
}

// TrueRange returns max(H−L, |H−prevClose|, |prevClose−L|).
func TrueRange(bar types.Bar, prevClose decimal.Decimal) decimal.Decimal {
	tr := bar.High.Sub(bar.Low)
	if hc := bar.High.Sub(prevClose).Abs(); hc.GreaterThan(tr) {
		tr = hc
	}
	if cl := prevClose.Sub(bar.Low).Abs(); cl.GreaterThan(tr) {
		tr = cl
	}
	return tr
}

// Calculate computes N from scratch over an ordered bar sequence.
// The sequence must hold at least period+1 bars: true range needs a
// previous close, so P true ranges consume P+1 bars.
//
// Wilder smoothing seeds with the simple mean of the first P true
// ranges, then applies N_i = ((P−1)·N_{i−1} + TR_i)/P for the rest.
// This from-scratch path is for initialization and backtests; once a
// persisted series exists, Update is authoritative.
func (c *ATRCalculator) Calculate(bars []types.Bar) (types.NValue, error) {
	if len(bars) < c.period+1 {
		return types.NValue{}, fmt.Errorf("%w: need %d bars for %d-period ATR, have %d",
			types.ErrInsufficientHistory, c.period+1, c.period, len(bars))
	}

	p := decimal.NewFromInt(int64(c.period))

	// Seed: SMA of the first P true ranges.
	sum := decimal.Zero
	for i := 1; i <= c.period; i++ {
		sum = sum.Add(TrueRange(bars[i], bars[i-1].Close))
	}
	n := sum.Div(p)

	switch c.method {
	case types.ATRMethodSMA:
		// Rolling simple mean of the most recent P true ranges.
		for i := c.period + 1; i < len(bars); i++ {
			sum = sum.Add(TrueRange(bars[i], bars[i-1].Close)).
				Sub(TrueRange(bars[i-c.period], bars[i-c.period-1].Close))
		}
		n = sum.Div(p)
	default:
		// Wilder recurrence over the remaining bars.
		pMinus1 := p.Sub(decimal.NewFromInt(1))
		for i := c.period + 1; i < len(bars); i++ {
			tr := TrueRange(bars[i], bars[i-1].Close)
			n = pMinus1.Mul(n).Add(tr).Div(p)
		}
	}

	return types.NValue{
		Value:        n,
		Period:       c.period,
		Method:       c.method,
		CalculatedAt: bars[len(bars)-1].Date,
	}, nil
}

// Update advances a persisted N by one bar using the Wilder recurrence:
// ((P−1)·previous + TR)/P. This is the production path; it never
// re-seeds, so the continuous series survives contract rollovers.
func (c *ATRCalculator) Update(previous types.NValue, tr decimal.Decimal, asOf time.Time) types.NValue {
	p := decimal.NewFromInt(int64(c.period))
	value := p.Sub(decimal.NewFromInt(1)).Mul(previous.Value).Add(tr).Div(p)
	return types.NValue{
		Value:        value,
		Period:       c.period,
		Method:       previous.Method,
		CalculatedAt: asOf,
	}
}
