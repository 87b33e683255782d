package signal

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Candidate pairs a signal with the market snapshot it fired on.
type Candidate struct {
	Signal types.Signal
	Market types.MarketData
}

// Strength measures how far price has pushed past the breakout level,
// in units of N. Long and short breakouts are directly comparable.
func Strength(c Candidate) decimal.Decimal {
	if !c.Market.N.Value.IsPositive() {
		return decimal.Zero
	}
	var dist decimal.Decimal
	if c.Signal.Direction == types.DirectionLong {
		dist = c.Market.CurrentPrice.Sub(c.Signal.BreakoutPrice)
	} else {
		dist = c.Signal.BreakoutPrice.Sub(c.Market.CurrentPrice)
	}
	return dist.Div(c.Market.N.Value)
}

// RankCandidates orders candidates by descending strength. Ties break
// on symbol so the ordering is deterministic across runs.
func RankCandidates(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := Strength(ranked[i]), Strength(ranked[j])
		if si.Equal(sj) {
			return ranked[i].Signal.Symbol < ranked[j].Signal.Symbol
		}
		return si.GreaterThan(sj)
	})
	return ranked
}
