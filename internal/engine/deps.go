// Package engine wires the indicator, signal, sizing, limit and
// position machinery into the two production loops: the daily scanner
// and the continuous position monitor.
package engine

import (
	"context"

	"github.com/donchian-labs/turtle-engine/internal/storage"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Repository is the persistence surface the engine needs. *storage.Store
// satisfies it; tests substitute an in-memory fake.
type Repository interface {
	SaveIndicators(ctx context.Context, row storage.IndicatorRow) error
	LatestN(ctx context.Context, symbol string) (*types.NValue, error)

	InsertTrade(ctx context.Context, t types.Trade) error
	UpdateTradeLevels(ctx context.Context, tradeID string, levels []types.PyramidLevel) error
	CloseTrade(ctx context.Context, t types.Trade) error
	LastClosedTrade(ctx context.Context, symbol string, system types.System) (*types.Trade, error)
	OpenTrades(ctx context.Context) ([]types.Trade, error)
	Market(ctx context.Context, symbol string) (types.MarketSpec, error)

	InsertAlert(ctx context.Context, a types.Alert) error
	UpsertOpenPosition(ctx context.Context, r types.OpenPositionRow) error
	DeleteOpenPosition(ctx context.Context, symbol string) error
}
