package position

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/internal/limits"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Book is the in-memory set of open positions, keyed by symbol. One
// position per symbol; a market is either flat or held in one
// direction under one system.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

func NewBook() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// Add inserts a position. Adding over an existing symbol is an error;
// the old position must exit first.
func (b *Book) Add(p *Position) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.positions[p.Symbol]; exists {
		return fmt.Errorf("position already open for %s", p.Symbol)
	}
	b.positions[p.Symbol] = p
	return nil
}

// Get returns the open position for a symbol, or nil.
func (b *Book) Get(symbol string) *Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.positions[symbol]
}

// Remove drops a symbol from the book.
func (b *Book) Remove(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, symbol)
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// All returns open positions sorted by symbol for deterministic
// iteration.
func (b *Book) All() []*Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Exposure builds the limit checker's view of the book.
func (b *Book) Exposure(rules types.Rules) limits.PortfolioExposure {
	b.mu.RLock()
	defer b.mu.RUnlock()

	exp := limits.PortfolioExposure{
		UnitsBySymbol: make(map[string]int, len(b.positions)),
		UnitsByGroup:  make(map[string]int),
		TotalRisk:     decimal.Zero,
	}
	for sym, p := range b.positions {
		units := p.TotalUnits()
		exp.UnitsBySymbol[sym] = units
		if g := p.Spec.CorrelationGroup; g != "" {
			exp.UnitsByGroup[g] += units
		}
		exp.TotalUnits += units
		exp.TotalRisk = exp.TotalRisk.Add(p.EntryRisk(rules))
	}
	return exp
}
