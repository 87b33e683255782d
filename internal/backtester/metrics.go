package backtester

import (
	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Stats summarizes a simulation's trades and equity curve.
type Stats struct {
	TotalTrades   int             `json:"totalTrades"`
	WinningTrades int             `json:"winningTrades"`
	LosingTrades  int             `json:"losingTrades"`
	WinRate       decimal.Decimal `json:"winRate"`
	NetPnL        decimal.Decimal `json:"netPnl"`
	AvgWin        decimal.Decimal `json:"avgWin"`
	AvgLoss       decimal.Decimal `json:"avgLoss"`
	LargestWin    decimal.Decimal `json:"largestWin"`
	LargestLoss   decimal.Decimal `json:"largestLoss"`
	ProfitFactor  decimal.Decimal `json:"profitFactor"`
	TotalReturn   decimal.Decimal `json:"totalReturn"`
	MaxDrawdown   decimal.Decimal `json:"maxDrawdown"`
}

// computeStats folds closed trades and the equity curve into summary
// statistics. Trend systems live or die on a few large winners, so the
// largest-win and profit-factor numbers matter more than win rate.
func computeStats(trades []types.Trade, curve []EquityPoint, initial decimal.Decimal) Stats {
	var s Stats
	var totalWins, totalLosses decimal.Decimal

	for _, t := range trades {
		if t.NetPnL == nil {
			continue
		}
		pnl := *t.NetPnL
		s.TotalTrades++
		s.NetPnL = s.NetPnL.Add(pnl)
		switch {
		case pnl.IsPositive():
			s.WinningTrades++
			totalWins = totalWins.Add(pnl)
			if pnl.GreaterThan(s.LargestWin) {
				s.LargestWin = pnl
			}
		case pnl.IsNegative():
			s.LosingTrades++
			totalLosses = totalLosses.Add(pnl.Abs())
			if pnl.Abs().GreaterThan(s.LargestLoss) {
				s.LargestLoss = pnl.Abs()
			}
		}
	}

	if s.TotalTrades > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.WinningTrades)).
			Div(decimal.NewFromInt(int64(s.TotalTrades)))
	}
	if s.WinningTrades > 0 {
		s.AvgWin = totalWins.Div(decimal.NewFromInt(int64(s.WinningTrades)))
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = totalLosses.Div(decimal.NewFromInt(int64(s.LosingTrades)))
	}
	if totalLosses.IsPositive() {
		s.ProfitFactor = totalWins.Div(totalLosses)
	}

	if len(curve) > 0 && initial.IsPositive() {
		final := curve[len(curve)-1].Equity
		s.TotalReturn = final.Sub(initial).Div(initial)
	}
	s.MaxDrawdown = maxDrawdown(curve)
	return s
}

// maxDrawdown is the largest peak-to-trough decline on the curve, as a
// fraction of the peak.
func maxDrawdown(curve []EquityPoint) decimal.Decimal {
	var peak, worst decimal.Decimal
	for _, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(p.Equity).Div(peak)
		if dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}
