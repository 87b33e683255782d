package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Quoter supplies the price a paper fill executes at.
type Quoter interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type paperPosition struct {
	direction types.Direction
	contracts int64
	avgPrice  decimal.Decimal
	stop      decimal.Decimal
}

// Paper is a deterministic in-memory broker: every order fills in full
// at the quoted price, immediately. Useful for dry runs and tests.
type Paper struct {
	mu        sync.Mutex
	logger    *zap.Logger
	quoter    Quoter
	positions map[string]*paperPosition
}

func NewPaper(logger *zap.Logger, quoter Quoter) *Paper {
	return &Paper{
		logger:    logger,
		quoter:    quoter,
		positions: make(map[string]*paperPosition),
	}
}

func (p *Paper) PlaceBracketOrder(ctx context.Context, order BracketOrder) (Fill, error) {
	if order.Contracts < 1 {
		return Fill{}, fmt.Errorf("%w: order for %d contracts", types.ErrBrokerRejected, order.Contracts)
	}
	price, err := p.quoter.CurrentPrice(ctx, order.Symbol)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: quoting %s: %v", types.ErrBrokerTransient, order.Symbol, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[order.Symbol]
	if pos == nil {
		p.positions[order.Symbol] = &paperPosition{
			direction: order.Direction,
			contracts: order.Contracts,
			avgPrice:  price,
			stop:      order.StopPrice,
		}
	} else {
		if pos.direction != order.Direction {
			return Fill{}, fmt.Errorf("%w: %s held %s, order is %s",
				types.ErrBrokerRejected, order.Symbol, pos.direction, order.Direction)
		}
		total := pos.contracts + order.Contracts
		weighted := pos.avgPrice.Mul(decimal.NewFromInt(pos.contracts)).
			Add(price.Mul(decimal.NewFromInt(order.Contracts)))
		pos.avgPrice = weighted.Div(decimal.NewFromInt(total))
		pos.contracts = total
		pos.stop = order.StopPrice
	}

	fill := Fill{
		OrderID:   uuid.New().String(),
		Symbol:    order.Symbol,
		Direction: order.Direction,
		Contracts: order.Contracts,
		Price:     price,
		FilledAt:  time.Now().UTC(),
	}
	p.logger.Info("paper fill",
		zap.String("symbol", fill.Symbol),
		zap.String("direction", string(fill.Direction)),
		zap.Int64("contracts", fill.Contracts),
		zap.String("price", fill.Price.String()),
	)
	return fill, nil
}

func (p *Paper) ModifyStop(_ context.Context, symbol string, newStop decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.positions[symbol]
	if pos == nil {
		return fmt.Errorf("%w: no position in %s", types.ErrBrokerRejected, symbol)
	}
	pos.stop = newStop
	return nil
}

func (p *Paper) ClosePosition(ctx context.Context, symbol string) (Fill, error) {
	price, err := p.quoter.CurrentPrice(ctx, symbol)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: quoting %s: %v", types.ErrBrokerTransient, symbol, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.positions[symbol]
	if pos == nil {
		return Fill{}, fmt.Errorf("%w: no position in %s", types.ErrBrokerRejected, symbol)
	}
	delete(p.positions, symbol)

	return Fill{
		OrderID:   uuid.New().String(),
		Symbol:    symbol,
		Direction: pos.direction.Opposite(),
		Contracts: pos.contracts,
		Price:     price,
		FilledAt:  time.Now().UTC(),
	}, nil
}

func (p *Paper) CancelAllOrders(_ context.Context, _ string) error { return nil }

func (p *Paper) Positions(_ context.Context) ([]BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]BrokerPosition, 0, len(p.positions))
	for sym, pos := range p.positions {
		out = append(out, BrokerPosition{
			Symbol:    sym,
			Direction: pos.direction,
			Contracts: pos.contracts,
			AvgPrice:  pos.avgPrice,
		})
	}
	return out, nil
}
