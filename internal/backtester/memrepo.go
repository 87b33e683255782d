package backtester

import (
	"context"
	"fmt"
	"sync"

	"github.com/donchian-labs/turtle-engine/internal/storage"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// memRepo is the in-memory repository a simulation runs against. It
// keeps just enough state for the engine: the latest N per symbol for
// the stateful recurrence, and closed trades for the last-winner
// filter. Rollover exits stay out of the filter history, matching the
// durable store.
type memRepo struct {
	mu      sync.Mutex
	latestN map[string]types.NValue
	open    map[string]types.Trade
	closed  []types.Trade
	lastS1  map[string]types.Trade
}

func newMemRepo() *memRepo {
	return &memRepo{
		latestN: make(map[string]types.NValue),
		open:    make(map[string]types.Trade),
		lastS1:  make(map[string]types.Trade),
	}
}

func (m *memRepo) SaveIndicators(_ context.Context, row storage.IndicatorRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latestN[row.Symbol] = types.NValue{
		Value:        row.N,
		CalculatedAt: row.CalcDate,
	}
	return nil
}

func (m *memRepo) LatestN(_ context.Context, symbol string) (*types.NValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.latestN[symbol]; ok {
		return &n, nil
	}
	return nil, nil
}

func (m *memRepo) InsertTrade(_ context.Context, t types.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[t.ID] = t
	return nil
}

func (m *memRepo) UpdateTradeLevels(_ context.Context, tradeID string, levels []types.PyramidLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.open[tradeID]; ok {
		t.PyramidLevels = levels
		m.open[tradeID] = t
	}
	return nil
}

func (m *memRepo) CloseTrade(_ context.Context, t types.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, t.ID)
	m.closed = append(m.closed, t)
	if t.System == types.SystemOne && t.ExitReason != types.ExitReasonRollover {
		m.lastS1[t.Symbol] = t
	}
	return nil
}

func (m *memRepo) LastClosedTrade(_ context.Context, symbol string, system types.System) (*types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if system == types.SystemOne {
		if t, ok := m.lastS1[symbol]; ok {
			return &t, nil
		}
		return nil, nil
	}
	for i := len(m.closed) - 1; i >= 0; i-- {
		if m.closed[i].Symbol == symbol && m.closed[i].System == system {
			t := m.closed[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memRepo) OpenTrades(_ context.Context) ([]types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Trade
	for _, t := range m.open {
		out = append(out, t)
	}
	return out, nil
}

func (m *memRepo) Market(_ context.Context, symbol string) (types.MarketSpec, error) {
	return types.MarketSpec{}, fmt.Errorf("market %s not held in memory", symbol)
}

func (m *memRepo) InsertAlert(_ context.Context, _ types.Alert) error { return nil }

func (m *memRepo) UpsertOpenPosition(_ context.Context, _ types.OpenPositionRow) error { return nil }

func (m *memRepo) DeleteOpenPosition(_ context.Context, _ string) error { return nil }

// closedTrades copies out the settled trades, oldest first.
func (m *memRepo) closedTrades() []types.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Trade, len(m.closed))
	copy(out, m.closed)
	return out
}
