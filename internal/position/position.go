package position

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Position is the aggregate for one open market position. It only
// changes through Open, AppendPyramid and Close; every level already
// added is immutable. All contracts share a single current stop.
type Position struct {
	ID          string               `json:"id"`
	Symbol      string               `json:"symbol"`
	System      types.System         `json:"system"`
	Direction   types.Direction      `json:"direction"`
	Spec        types.MarketSpec     `json:"spec"`
	Levels      []types.PyramidLevel `json:"levels"`
	CurrentStop decimal.Decimal      `json:"currentStop"`
	OpenedAt    time.Time            `json:"openedAt"`
	closed      bool
}

// Open creates a one-unit position from an initial fill.
func Open(spec types.MarketSpec, sys types.System, dir types.Direction, level types.PyramidLevel, stop decimal.Decimal) (*Position, error) {
	if level.UnitNumber != 1 {
		return nil, fmt.Errorf("opening level must be unit 1, got %d", level.UnitNumber)
	}
	if level.Contracts < 1 {
		return nil, fmt.Errorf("opening level must carry contracts, got %d", level.Contracts)
	}
	return &Position{
		ID:          uuid.New().String(),
		Symbol:      spec.Symbol,
		System:      sys,
		Direction:   dir,
		Spec:        spec,
		Levels:      []types.PyramidLevel{level},
		CurrentStop: stop,
		OpenedAt:    level.EntryTime,
	}, nil
}

// Restore rebuilds a position from its persisted trade record. The
// stop is the latest level's, which always covers every earlier unit.
func Restore(spec types.MarketSpec, t types.Trade) (*Position, error) {
	if len(t.PyramidLevels) == 0 {
		return nil, fmt.Errorf("trade %s has no levels to restore", t.ID)
	}
	for i, level := range t.PyramidLevels {
		if level.UnitNumber != i+1 {
			return nil, fmt.Errorf("trade %s level %d has unit number %d", t.ID, i, level.UnitNumber)
		}
	}
	levels := make([]types.PyramidLevel, len(t.PyramidLevels))
	copy(levels, t.PyramidLevels)
	return &Position{
		ID:          t.ID,
		Symbol:      t.Symbol,
		System:      t.System,
		Direction:   t.Direction,
		Spec:        spec,
		Levels:      levels,
		CurrentStop: levels[len(levels)-1].OriginalStop,
		OpenedAt:    t.EntryDate,
	}, nil
}

// AppendPyramid adds a unit and advances the shared stop. The new
// level's unit number must be exactly one past the current count; the
// new stop must be an advance, never a retreat, relative to direction.
func (p *Position) AppendPyramid(level types.PyramidLevel, newStop decimal.Decimal) error {
	if p.closed {
		return types.ErrPositionClosed
	}
	if want := len(p.Levels) + 1; level.UnitNumber != want {
		return fmt.Errorf("pyramid unit number %d, expected %d", level.UnitNumber, want)
	}
	if level.Contracts < 1 {
		return fmt.Errorf("pyramid level must carry contracts, got %d", level.Contracts)
	}
	if p.Direction == types.DirectionLong && newStop.LessThan(p.CurrentStop) {
		return fmt.Errorf("stop retreat on long %s: %s below %s", p.Symbol, newStop, p.CurrentStop)
	}
	if p.Direction == types.DirectionShort && newStop.GreaterThan(p.CurrentStop) {
		return fmt.Errorf("stop retreat on short %s: %s above %s", p.Symbol, newStop, p.CurrentStop)
	}

	p.Levels = append(p.Levels, level)
	p.CurrentStop = newStop
	return nil
}

// Close marks the position exited. All units close together; partial
// exits do not exist in this system.
func (p *Position) Close() error {
	if p.closed {
		return types.ErrPositionClosed
	}
	p.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (p *Position) Closed() bool { return p.closed }

// TotalUnits is the number of pyramid levels.
func (p *Position) TotalUnits() int { return len(p.Levels) }

// TotalContracts sums contracts across levels.
func (p *Position) TotalContracts() int64 {
	var total int64
	for _, l := range p.Levels {
		total += l.Contracts
	}
	return total
}

// LatestLevel returns the most recently added level.
func (p *Position) LatestLevel() types.PyramidLevel {
	return p.Levels[len(p.Levels)-1]
}

// AverageEntry is the contract-weighted mean entry price.
func (p *Position) AverageEntry() decimal.Decimal {
	total := p.TotalContracts()
	if total == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, l := range p.Levels {
		sum = sum.Add(l.EntryPrice.Mul(decimal.NewFromInt(l.Contracts)))
	}
	return sum.Div(decimal.NewFromInt(total))
}

// NextPyramidTrigger is the price at which the next unit would be
// added: the latest entry advanced by the pyramid interval in units of
// that entry's N.
func (p *Position) NextPyramidTrigger(rules types.Rules) decimal.Decimal {
	latest := p.LatestLevel()
	step := latest.NAtEntry.Mul(rules.PyramidInterval)
	if p.Direction == types.DirectionLong {
		return latest.EntryPrice.Add(step)
	}
	return latest.EntryPrice.Sub(step)
}

// CanPyramid reports whether another unit fits under the per-market cap.
func (p *Position) CanPyramid(rules types.Rules) bool {
	return !p.closed && len(p.Levels) < rules.MaxUnitsPerMarket
}

// UnrealizedPnL values the open position at the given price.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	pnl := decimal.Zero
	for _, l := range p.Levels {
		diff := price.Sub(l.EntryPrice)
		if p.Direction == types.DirectionShort {
			diff = diff.Neg()
		}
		pnl = pnl.Add(diff.Mul(p.Spec.PointValue).Mul(decimal.NewFromInt(l.Contracts)))
	}
	return pnl
}

// StopRisk is the total dollar loss across all units if the current
// stop fills exactly.
func (p *Position) StopRisk() decimal.Decimal {
	risk := decimal.Zero
	for _, l := range p.Levels {
		diff := l.EntryPrice.Sub(p.CurrentStop)
		if p.Direction == types.DirectionShort {
			diff = diff.Neg()
		}
		risk = risk.Add(diff.Mul(p.Spec.PointValue).Mul(decimal.NewFromInt(l.Contracts)))
	}
	return risk
}

// EntryRisk is the sum of entry-time stop risk across units, the
// quantity the risk-capped exposure mode tracks.
func (p *Position) EntryRisk(rules types.Rules) decimal.Decimal {
	risk := decimal.Zero
	for _, l := range p.Levels {
		perContract := l.NAtEntry.Mul(rules.StopMultiplier).Mul(p.Spec.PointValue)
		risk = risk.Add(perContract.Mul(decimal.NewFromInt(l.Contracts)))
	}
	return risk
}
