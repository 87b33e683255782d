// Package broker defines the narrow order interface the engine trades
// through, a deterministic paper implementation, and retry wrapping
// for transient broker failures.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// BracketOrder is an entry order with its protective stop attached.
// The engine never places a naked entry.
type BracketOrder struct {
	Symbol    string          `json:"symbol"`
	Direction types.Direction `json:"direction"`
	Contracts int64           `json:"contracts"`
	StopPrice decimal.Decimal `json:"stopPrice"`
}

// Fill reports an executed order.
type Fill struct {
	OrderID   string          `json:"orderId"`
	Symbol    string          `json:"symbol"`
	Direction types.Direction `json:"direction"`
	Contracts int64           `json:"contracts"`
	Price     decimal.Decimal `json:"price"`
	FilledAt  time.Time       `json:"filledAt"`
}

// BrokerPosition is the broker's view of one open position, used for
// reconciliation against the engine's book.
type BrokerPosition struct {
	Symbol    string          `json:"symbol"`
	Direction types.Direction `json:"direction"`
	Contracts int64           `json:"contracts"`
	AvgPrice  decimal.Decimal `json:"avgPrice"`
}

// Broker places and manages orders. Implementations return
// types.ErrBrokerTransient for retryable failures and
// types.ErrBrokerRejected for definitive refusals.
type Broker interface {
	PlaceBracketOrder(ctx context.Context, order BracketOrder) (Fill, error)
	ModifyStop(ctx context.Context, symbol string, newStop decimal.Decimal) error
	ClosePosition(ctx context.Context, symbol string) (Fill, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	Positions(ctx context.Context) ([]BrokerPosition, error)
}
